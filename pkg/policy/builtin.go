package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		zeroAddressPolicy(),
		unitNamingPolicy(),
		redeployNoticePolicy(),
	}
}

// zeroAddressPolicy rejects literal zero-address constructor arguments on
// units that will be submitted.
func zeroAddressPolicy() Policy {
	return Policy{
		Name:        "zero-address-args",
		Description: "Rejects the zero address as a literal constructor argument",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"arguments", "safety"},
		Rego: `package chaindeploy.builtin.addresses

zero_address := "0x0000000000000000000000000000000000000000"

deny contains violation if {
	some step in input.plan.steps
	step.action != "skip"
	some i, arg in step.args
	is_string(arg.value)
	lower(arg.value) == zero_address
	violation := {
		"message": sprintf("argument %d is the zero address", [i]),
		"unit": step.unit,
	}
}
`,
	}
}

// unitNamingPolicy warns about unit names that do not look like contract
// names.
func unitNamingPolicy() Policy {
	return Policy{
		Name:        "unit-naming",
		Description: "Unit names should start with an upper-case letter and use only letters, digits and underscores",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package chaindeploy.builtin.naming

deny contains violation if {
	some step in input.plan.steps
	not regex.match("^[A-Z][A-Za-z0-9_]*$", step.unit)
	violation := {
		"message": sprintf("unit name '%s' should start with an upper-case letter and contain only letters, digits and underscores", [step.unit]),
		"unit": step.unit,
	}
}
`,
	}
}

// redeployNoticePolicy reports every address a plan is about to replace.
func redeployNoticePolicy() Policy {
	return Policy{
		Name:        "redeploy-notice",
		Description: "Reports ledger entries a plan will replace",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"redeploy"},
		Rego: `package chaindeploy.builtin.redeploy

deny contains violation if {
	some step in input.plan.steps
	step.action == "redeploy"
	violation := {
		"message": sprintf("replaces %s on %s", [step.existing_address, input.network]),
		"unit": step.unit,
	}
}
`,
	}
}
