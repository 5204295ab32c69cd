// Package tsl models a device's Thing Specification Language document: the
// properties, services and events it declares, plus the static mapping from
// property identifiers to presentation categories.
package tsl
