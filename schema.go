package wleappcam

import (
	"sort"
)

// Release is a Windows release family with a known store layout.
type Release int

const (
	// ReleaseNone is the zero value and matches no layout.
	ReleaseNone Release = iota
	// Release23H2 covers Windows 10 / 11 up to 23H2.
	Release23H2
	// Release24H2 covers Windows 11 24H2, which added application names,
	// access GUIDs, labels, service names and the global prompt history.
	Release24H2
)

func (r Release) String() string {
	switch r {
	case Release23H2:
		return "W23H2"
	case Release24H2:
		return "W24H2"
	}
	return "none"
}

// Signature maps a table name to its column count.
type Signature map[string]int

// Layout maps a table name to its sorted column names.
type Layout map[string][]string

// Signature derives the column counts of a layout.
func (l Layout) Signature() Signature {
	sig := make(Signature, len(l))
	for table, columns := range l {
		sig[table] = len(columns)
	}
	return sig
}

// Tables returns the sorted table names.
func (l Layout) Tables() []string {
	names := make([]string, 0, len(l))
	for table := range l {
		names = append(names, table)
	}
	sort.Strings(names)
	return names
}

var lookupColumns = []string{"ID", "StringValue"}

// lookup tables shared by both releases
var baseLookups = []string{
	"BinaryFullPaths", "Capabilities", "FileIDs", "PackageFamilyNames", "ProgramIDs", "Users",
}

func layout23H2() Layout {
	l := Layout{}
	for _, table := range baseLookups {
		l[table] = lookupColumns
	}
	l["NonPackagedIdentityRelationship"] = []string{
		"BinaryFullPath", "FileID", "ID", "LastObservedTime", "ProgramID",
	}
	l["NonPackagedUsageHistory"] = []string{
		"AccessBlocked", "BinaryFullPath", "Capability", "FileID", "ID",
		"LastUsedTimeStart", "LastUsedTimeStop", "ProgramID", "UserSid",
	}
	l["PackagedUsageHistory"] = []string{
		"AccessBlocked", "Capability", "ID", "LastUsedTimeStart", "LastUsedTimeStop",
		"PackageFamilyName", "UserSid",
	}
	return l
}

func layout24H2() Layout {
	l := Layout{}
	for _, table := range append([]string{"AccessGUIDs", "AppNames", "ServiceNames"}, baseLookups...) {
		l[table] = lookupColumns
	}
	l["NonPackagedGlobalPromptHistory"] = []string{
		"Capability", "FileID", "ID", "ProgramID", "ShownTime", "UserSid",
	}
	l["NonPackagedIdentityRelationship"] = []string{
		"BinaryFullPath", "FileID", "ID", "LastObservedTime", "ProgramID",
	}
	l["NonPackagedUsageHistory"] = []string{
		"AccessBlocked", "AccessGUID", "AppName", "BinaryFullPath", "Capability", "FileID", "ID",
		"Label", "LastUsedTimeStart", "LastUsedTimeStop", "ProgramID", "ServiceName", "UserSid",
	}
	l["PackagedUsageHistory"] = []string{
		"AccessBlocked", "AccessGUID", "AppName", "Capability", "ID", "Label",
		"LastUsedTimeStart", "LastUsedTimeStop", "PackageFamilyName", "UserSid",
	}
	return l
}

// historyTables are the usage and prompt history tables. Column drift in
// these tables does not affect the report joins.
var historyTables = map[string]bool{
	"nonpackagedglobalprompthistory":  true,
	"nonpackagedidentityrelationship": true,
	"nonpackagedusagehistory":         true,
	"packagedusagehistory":            true,
}

type registry struct {
	releases []Release
	layouts  map[Release]Layout
}

var knownLayouts = &registry{ // nolint:gochecknoglobals
	releases: []Release{Release23H2, Release24H2},
	layouts: map[Release]Layout{
		Release23H2: layout23H2(),
		Release24H2: layout24H2(),
	},
}

// KnownReleases returns the releases with a registered layout.
func KnownReleases() []Release {
	return append([]Release(nil), knownLayouts.releases...)
}

// KnownLayout returns a copy of the canonical layout of a release.
func KnownLayout(r Release) (Layout, bool) {
	l, ok := knownLayouts.layouts[r]
	if !ok {
		return nil, false
	}
	c := make(Layout, len(l))
	for table, columns := range l {
		c[table] = append([]string(nil), columns...)
	}
	return c, true
}

// KnownSignature returns the canonical column counts of a release.
func KnownSignature(r Release) (Signature, bool) {
	l, ok := knownLayouts.layouts[r]
	if !ok {
		return nil, false
	}
	return l.Signature(), true
}
