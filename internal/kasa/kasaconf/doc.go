// Package kasaconf translates between the persisted JSON document
// ({"kasa":{"devices":[...],"net":[...]}}) and the live device table,
// and performs the DeviceListChanged-triggered re-save. The depot that
// stores the document's bytes is reached only through the Persister
// interface.
package kasaconf
