// Package rules turns decoded trap Records into alert events.
//
// A rule file is a JSON object whose keys are rule ids:
//
//	{
//	  "coldstart": {
//	    "trap":  {"type": ["SNMPv2-MIB", "coldStart"], "args": {}},
//	    "event": {"name": "coldStart", "output": "Host {hostname} restarted",
//	              "handlers": ["default"], "severity": "WARNING"}
//	  }
//	}
//
// Key order is significant: RuleSet.Match returns the first rule, in file
// order, whose trap identity equals the Record's and whose args cover every
// Record argument except sysUpTime.
//
// Templates substitute {token} from oid, trap, the source properties and
// then the rule's argument tokens. "{{" and "}}" are literal braces.
package rules
