package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRequestEncode(t *testing.T) {
	req := NewRequest(MethodServiceInvoke, "00158D0001A2B3C4")
	req.Identifier = "identify"
	req.Params = map[string]any{"IdentifyTime": 5}

	b, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("encoded frame is not JSON: %v", err)
	}

	want := map[string]any{
		"id":         req.ID,
		"version":    "1.0",
		"deviceID":   "00158D0001A2B3C4",
		"method":     "thing.service.invoke",
		"identifier": "identify",
		"params":     map[string]any{"IdentifyTime": float64(5)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode() = %v, want %v", got, want)
	}
}

func TestRequestEncode_OmitsEmptyPayload(t *testing.T) {
	b, err := NewRequest(MethodDiscover, "GW1").Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	s := string(b)
	if strings.Contains(s, "params") || strings.Contains(s, "identifier") {
		t.Errorf("Encode() = %s, want no params/identifier keys", s)
	}
}

func TestRequestEncode_UnknownMethod(t *testing.T) {
	if _, err := (&Request{ID: "x"}).Encode(); err == nil {
		t.Error("Encode() without method expected error")
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("NewID() returned duplicate ids")
	}
	if a != strings.ToUpper(a) || len(a) != 36 {
		t.Errorf("NewID() = %q, want upper-case UUID", a)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, m *Message)
	}{
		{
			name:    "reply with code and data",
			payload: `{"id":"ABC","deviceID":"GW1","method":"thing.tsl.get.reply","code":200,"data":{"properties":[]}}`,
			check: func(t *testing.T, m *Message) {
				if m.ID != "ABC" || m.Method != MethodTSLGetReply || !m.Succeeded() || m.Data == nil {
					t.Errorf("unexpected message %+v", m)
				}
			},
		},
		{
			name:    "absent fields default",
			payload: `{"method":"thing.device.online"}`,
			check: func(t *testing.T, m *Message) {
				if m.ID != "" || m.DeviceID != "" || m.Code != 0 || m.Params != nil || m.Data != nil {
					t.Errorf("expected zero values, got %+v", m)
				}
			},
		},
		{
			name:    "numeric id and string code",
			payload: `{"id":42,"method":"thing.service.invoke.reply","code":"200"}`,
			check: func(t *testing.T, m *Message) {
				if m.ID != "42" || m.Code != 200 {
					t.Errorf("ID = %q Code = %d, want 42/200", m.ID, m.Code)
				}
			},
		},
		{
			name:    "null payload fields",
			payload: `{"method":"thing.event.property.post","params":null,"data":null}`,
			check: func(t *testing.T, m *Message) {
				if m.Params != nil || m.Data != nil {
					t.Errorf("null payloads should decode as nil, got %s %s", m.Params, m.Data)
				}
			},
		},
		{
			name:    "unknown method keeps raw name",
			payload: `{"method":"thing.ota.progress"}`,
			check: func(t *testing.T, m *Message) {
				if m.Method != MethodUnknown || m.RawMethod != "thing.ota.progress" {
					t.Errorf("Method = %v RawMethod = %q", m.Method, m.RawMethod)
				}
			},
		},
		{name: "invalid json", payload: `{"method":`, wantErr: true},
		{name: "not an object", payload: `[1,2,3]`, wantErr: true},
		{name: "missing method", payload: `{"id":"A","code":200}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Fatalf("Decode() error = %v, want ErrDecode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			tt.check(t, m)
		})
	}
}

func TestMessageProperties(t *testing.T) {
	m, err := Decode([]byte(`{
		"deviceID":"A1",
		"method":"thing.event.property.post",
		"params":{
			"OnOff":{"value":1,"time":1700000000000,"changeByUser":1},
			"CurrentLevel":{"value":"80","time":"1700000000001"},
			"Temperature":21.5
		}
	}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	props, err := m.Properties()
	if err != nil {
		t.Fatalf("Properties() error = %v", err)
	}

	if got := props.Names(); !reflect.DeepEqual(got, []string{"CurrentLevel", "OnOff", "Temperature"}) {
		t.Errorf("Names() = %v", got)
	}
	onOff := props["OnOff"]
	if onOff.Value != float64(1) || onOff.Time != 1700000000000 || onOff.ChangeByUser != 1 {
		t.Errorf("OnOff = %+v", onOff)
	}
	if props["CurrentLevel"].Time != 1700000000001 {
		t.Errorf("CurrentLevel.Time = %d, want string time decoded", props["CurrentLevel"].Time)
	}
	if props["Temperature"].Value != 21.5 {
		t.Errorf("bare scalar Temperature = %+v", props["Temperature"])
	}
	if f, ok := props["CurrentLevel"].Float(); !ok || f != 80 {
		t.Errorf("CurrentLevel.Float() = %v, %v", f, ok)
	}
}

func TestMessageProperties_FromData(t *testing.T) {
	m, err := Decode([]byte(`{"method":"thing.service.property.get.reply","code":200,"data":{"OnOff":{"value":0}}}`))
	if err != nil {
		t.Fatal(err)
	}
	props, err := m.Properties()
	if err != nil {
		t.Fatalf("Properties() error = %v", err)
	}
	if _, ok := props["OnOff"]; !ok || len(props) != 1 {
		t.Errorf("Properties() = %v, want OnOff from data", props)
	}
}

func TestMessageProperties_Malformed(t *testing.T) {
	m, err := Decode([]byte(`{"method":"thing.event.property.post","params":[1,2]}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Properties(); !errors.Is(err, ErrDecode) {
		t.Errorf("Properties() error = %v, want ErrDecode", err)
	}
}

func TestDevicePage(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantDevices []string
		wantPaged   bool
		wantPages   [2]int
	}{
		{
			name: "envelope paging",
			payload: `{"id":"S","method":"thing.subdev.getall.reply","code":200,"PageCount":2,"CurrentPage":1,
				"data":{"deviceList":[{"deviceID":"A","online":"1","config":{"name":"Hall"}}]}}`,
			wantDevices: []string{"A"},
			wantPaged:   true,
			wantPages:   [2]int{2, 1},
		},
		{
			name: "paging inside data as strings",
			payload: `{"method":"thing.subdev.getall.reply","code":200,
				"data":{"pageCount":"3","currentPage":"3","deviceList":[{"deviceID":"B"},{"deviceID":"C"}]}}`,
			wantDevices: []string{"B", "C"},
			wantPaged:   true,
			wantPages:   [2]int{3, 3},
		},
		{
			name:        "unpaged",
			payload:     `{"method":"thing.subdev.getall.reply","code":200,"data":{"deviceList":[]}}`,
			wantDevices: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.payload))
			if err != nil {
				t.Fatal(err)
			}
			page, err := m.DevicePage()
			if err != nil {
				t.Fatalf("DevicePage() error = %v", err)
			}
			ids := []string{}
			for _, d := range page.Devices {
				ids = append(ids, d.DeviceID)
			}
			if !reflect.DeepEqual(ids, tt.wantDevices) {
				t.Errorf("devices = %v, want %v", ids, tt.wantDevices)
			}
			if page.Paged != tt.wantPaged {
				t.Errorf("Paged = %v, want %v", page.Paged, tt.wantPaged)
			}
			if tt.wantPaged && (page.PageCount != tt.wantPages[0] || page.CurrentPage != tt.wantPages[1]) {
				t.Errorf("pages = %d/%d, want %d/%d", page.CurrentPage, page.PageCount, tt.wantPages[1], tt.wantPages[0])
			}
		})
	}
}

func TestDeviceRecordFields(t *testing.T) {
	var rec DeviceRecord
	err := json.Unmarshal([]byte(`{
		"deviceID":"00158D0001A2B3C4","profile":"0104","deviceType":"0102","productId":"P1",
		"version":"1.2","online":"1","protocol":"zigbee","manufacturer":"Sunricher",
		"manufacturerCode":"4417","imageType":7,"householdId":"H","isAdded":"0",
		"config":{"name":"Kitchen"}}`), &rec)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !bool(rec.Online) || bool(rec.IsAdded) {
		t.Errorf("Online = %v IsAdded = %v, want true/false", rec.Online, rec.IsAdded)
	}
	if rec.ManufacturerCode != 4417 || rec.ImageType != 7 {
		t.Errorf("ManufacturerCode = %d ImageType = %d", rec.ManufacturerCode, rec.ImageType)
	}
	if rec.Config.Name != "Kitchen" || rec.DeviceType != "0102" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestPropertiesIntersects(t *testing.T) {
	props := Properties{"OnOff": {Value: 1}, "CurrentLevel": {Value: 50}}

	tests := []struct {
		names []string
		want  bool
	}{
		{nil, true},
		{[]string{"OnOff"}, true},
		{[]string{"Humidity", "CurrentLevel"}, true},
		{[]string{"Humidity"}, false},
	}
	for _, tt := range tests {
		if got := props.Intersects(tt.names); got != tt.want {
			t.Errorf("Intersects(%v) = %v, want %v", tt.names, got, tt.want)
		}
	}
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in      string
		want    FlexInt
		wantErr bool
	}{
		{`12`, 12, false},
		{`"12"`, 12, false},
		{`" 7 "`, 7, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`true`, 1, false},
		{`3.9`, 3, false},
		{`"abc"`, 0, true},
	}
	for _, tt := range tests {
		var f FlexInt
		err := json.Unmarshal([]byte(tt.in), &f)
		if (err != nil) != tt.wantErr {
			t.Errorf("FlexInt(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && f != tt.want {
			t.Errorf("FlexInt(%s) = %d, want %d", tt.in, f, tt.want)
		}
	}
}

func TestFlag(t *testing.T) {
	tests := map[string]bool{
		`"1"`: true, `1`: true, `true`: true, `"true"`: true,
		`"0"`: false, `0`: false, `false`: false, `""`: false, `null`: false,
	}
	for in, want := range tests {
		var f Flag
		if err := json.Unmarshal([]byte(in), &f); err != nil {
			t.Errorf("Flag(%s) error = %v", in, err)
			continue
		}
		if bool(f) != want {
			t.Errorf("Flag(%s) = %v, want %v", in, f, want)
		}
	}
}
