// Package trap receives SNMP notifications and turns them into Records.
//
// Receiver wraps gosnmp's TrapListener, rejecting notifications whose
// version, community or USM user does not match the configuration. Decode
// maps each accepted packet to a Record: the trap identity (from
// snmpTrapOID.0, or translated from a v1 trap), the remaining variable
// bindings keyed by MIB symbol with display values, and the sender's
// hostname, ipaddress and domain from HostResolver.
package trap
