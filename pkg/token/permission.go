package token

import "encoding/json"

// Permission is a single capability carried inside a token's "per" claim.
// The wire encoding is SCREAMING_SNAKE_CASE.
type Permission string

const (
	PermGetAnyAstronaut           Permission = "GET_ANY_ASTRONAUT"
	PermGetOwnAstronaut           Permission = "GET_OWN_ASTRONAUT"
	PermUpdateAnyAstronaut        Permission = "UPDATE_ANY_ASTRONAUT"
	PermUpdateOwnAstronaut        Permission = "UPDATE_OWN_ASTRONAUT"
	PermCreateMission             Permission = "CREATE_MISSION"
	PermUpdateAnyMission          Permission = "UPDATE_ANY_MISSION"
	PermUpdateMissionIfCrewMember Permission = "UPDATE_MISSION_IF_CREW_MEMBER"
	PermGetAnyMission             Permission = "GET_ANY_MISSION"
	PermGetMissionIfCrewMember    Permission = "GET_MISSION_IF_CREW_MEMBER"
	PermGetAstronautIfCoCrew      Permission = "GET_ASTRONAUT_IF_CO_CREW"

	// PermOther is the sentinel every unknown wire value collapses to.
	// It matches no allow rule, so tokens minted by a newer deployment
	// degrade to fewer capabilities instead of failing to parse.
	PermOther Permission = "OTHER"
)

var knownPermissions = map[Permission]bool{
	PermGetAnyAstronaut:           true,
	PermGetOwnAstronaut:           true,
	PermUpdateAnyAstronaut:        true,
	PermUpdateOwnAstronaut:        true,
	PermCreateMission:             true,
	PermUpdateAnyMission:          true,
	PermUpdateMissionIfCrewMember: true,
	PermGetAnyMission:             true,
	PermGetMissionIfCrewMember:    true,
	PermGetAstronautIfCoCrew:      true,
}

// UnmarshalJSON folds unknown values into PermOther.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if knownPermissions[Permission(s)] {
		*p = Permission(s)
	} else {
		*p = PermOther
	}
	return nil
}

// Permissions is the permission list of one token or token family.
type Permissions []Permission

// Has reports whether the list contains p.
func (ps Permissions) Has(p Permission) bool {
	for _, v := range ps {
		if v == p {
			return true
		}
	}
	return false
}

// Subset reports whether every permission in ps is present in other.
func (ps Permissions) Subset(other Permissions) bool {
	for _, v := range ps {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

// PasswordGrantPermissions is the set granted on a credential exchange.
// Own-scoped by default; broader grants come from other flows.
var PasswordGrantPermissions = Permissions{
	PermGetOwnAstronaut,
	PermUpdateOwnAstronaut,
	PermGetAstronautIfCoCrew,
	PermCreateMission,
	PermUpdateMissionIfCrewMember,
	PermGetMissionIfCrewMember,
}
