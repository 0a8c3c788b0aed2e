// Package mib resolves numeric OIDs to MODULE::name symbols and raw values to
// display values. It is a static lookup service: a built-in table of the
// SNMPv2-MIB, IF-MIB and SNMP-COMMUNITY-MIB objects used by generic traps,
// extended from the mibs section of the config. MIB files are not parsed.
package mib
