package mib

// builtinSymbols covers the objects every trap receiver needs without loading
// MIB files: the SNMPv2 notification plumbing, the generic traps and the
// interface objects carried by linkUp/linkDown.
var builtinSymbols = map[Symbol]string{
	{"SNMPv2-MIB", "sysDescr"}:              "1.3.6.1.2.1.1.1",
	{"SNMPv2-MIB", "sysObjectID"}:           "1.3.6.1.2.1.1.2",
	{"SNMPv2-MIB", "sysUpTime"}:             "1.3.6.1.2.1.1.3",
	{"SNMPv2-MIB", "sysContact"}:            "1.3.6.1.2.1.1.4",
	{"SNMPv2-MIB", "sysName"}:               "1.3.6.1.2.1.1.5",
	{"SNMPv2-MIB", "sysLocation"}:           "1.3.6.1.2.1.1.6",
	{"SNMPv2-MIB", "snmpTrapOID"}:           "1.3.6.1.6.3.1.1.4.1",
	{"SNMPv2-MIB", "snmpTrapEnterprise"}:    "1.3.6.1.6.3.1.1.4.3",
	{"SNMPv2-MIB", "coldStart"}:             "1.3.6.1.6.3.1.1.5.1",
	{"SNMPv2-MIB", "warmStart"}:             "1.3.6.1.6.3.1.1.5.2",
	{"SNMPv2-MIB", "authenticationFailure"}: "1.3.6.1.6.3.1.1.5.5",

	{"IF-MIB", "linkDown"}:      "1.3.6.1.6.3.1.1.5.3",
	{"IF-MIB", "linkUp"}:        "1.3.6.1.6.3.1.1.5.4",
	{"IF-MIB", "ifIndex"}:       "1.3.6.1.2.1.2.2.1.1",
	{"IF-MIB", "ifDescr"}:       "1.3.6.1.2.1.2.2.1.2",
	{"IF-MIB", "ifType"}:        "1.3.6.1.2.1.2.2.1.3",
	{"IF-MIB", "ifAdminStatus"}: "1.3.6.1.2.1.2.2.1.7",
	{"IF-MIB", "ifOperStatus"}:  "1.3.6.1.2.1.2.2.1.8",
	{"IF-MIB", "ifName"}:        "1.3.6.1.2.1.31.1.1.1.1",
	{"IF-MIB", "ifAlias"}:       "1.3.6.1.2.1.31.1.1.1.18",

	{"SNMP-COMMUNITY-MIB", "snmpTrapAddress"}:   "1.3.6.1.6.3.18.1.3",
	{"SNMP-COMMUNITY-MIB", "snmpTrapCommunity"}: "1.3.6.1.6.3.18.1.4",
}

var ifStatus = map[int64]string{
	1: "up",
	2: "down",
	3: "testing",
	4: "unknown",
	5: "dormant",
	6: "notPresent",
	7: "lowerLayerDown",
}

var builtinEnums = map[Symbol]map[int64]string{
	{"IF-MIB", "ifAdminStatus"}: {1: "up", 2: "down", 3: "testing"},
	{"IF-MIB", "ifOperStatus"}:  ifStatus,
}
