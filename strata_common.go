package strata

// Common stratum names. They are registered, in this order, by
// NewStratumOrder so priorities ascend defaults < url-record < underride <
// definition < override < user.
const (
	StratumDefaults   = "defaults"
	StratumURLRecord  = "url-record"
	StratumUnderride  = "underride"
	StratumDefinition = "definition"
	StratumOverride   = "override"
	StratumUser       = "user"
)

var commonStrata = []struct {
	name string
	role StratumRole
}{
	{StratumDefaults, RoleDefault},
	{StratumURLRecord, RoleDefault},
	{StratumUnderride, RoleUnderride},
	{StratumDefinition, RoleDefinition},
	{StratumOverride, RoleOverride},
	{StratumUser, RoleUser},
}
