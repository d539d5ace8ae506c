// Package netif is the network-interface collaborator of the MQTT manager.
//
// A Watcher polls one interface and reports link-up, link-down and
// address-acquired notifications; an address that replaces a previously
// held one is flagged as Changed. AccessPoint records the provisioning
// access-point hints (start request, auto-shutdown) the manager issues.
//
// Association with a wireless network is out of scope: the watcher only
// observes what the operating system reports.
package netif
