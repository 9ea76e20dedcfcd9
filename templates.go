package wleappcam

import "fmt"

// family is a set of release families a template part applies to.
type family uint8

const (
	older family = 1 << iota
	newer
	both = older | newer
)

func familyOf(r Release) family {
	switch r {
	case Release23H2:
		return older
	case Release24H2:
		return newer
	}
	return 0
}

func (f family) has(g family) bool { return f&g != 0 }

// column is one selected expression. header is the label shown in reports.
type column struct {
	expr   string
	alias  string
	header string
	in     family
}

type join struct {
	table string
	on    string
	in    family
}

type term struct {
	expr string
	in   family
}

// fragment is a SELECT over one source table.
type fragment struct {
	from    string
	date    string
	columns []column
	joins   []join
	groupBy []term
}

type shape int

const (
	single shape = iota
	union
	unionSum
)

// template describes one report for every release family.
type template struct {
	id        ReportID
	name      string
	tsv       string
	in        family
	shape     shape
	fragments []fragment
	// orderBy overrides date ordering and is always applied.
	orderBy string
	// orderAlias orders by an output column instead of the date column.
	orderAlias string
}

func civil(col string) string {
	return fmt.Sprintf("datetime((%s/10000000)-11644473600,'unixepoch','localtime')", col)
}

func civilOrNA(col string) string {
	return fmt.Sprintf("CASE WHEN %s = 0 THEN '%s' ELSE %s END", col, NotAvailable, civil(col))
}

func accessText(table string) string {
	return fmt.Sprintf("CASE WHEN %s.AccessBlocked = 0 THEN 'Access OK' ELSE 'Blocked' END", table)
}

func lookup(history, col, table string, in family) join {
	return join{table: table, on: fmt.Sprintf("%s.%s = %s.ID", history, col, table), in: in}
}

// usageJoins are the joins every usage history query needs.
func usageJoins(history string) []join {
	return []join{
		lookup(history, "UserSid", "Users", both),
		lookup(history, "Capability", "Capabilities", both),
	}
}

func appNameJoin(history string) join {
	return lookup(history, "AppName", "AppNames", newer)
}

const (
	packaged    = "PackagedUsageHistory"
	nonPackaged = "NonPackagedUsageHistory"
	identity    = "NonPackagedIdentityRelationship"
	prompt      = "NonPackagedGlobalPromptHistory"
)

var templates = []template{ // nolint:gochecknoglobals
	{
		id: ReportPackaged, name: "A_CAM_PackagedApps", tsv: "A_CAM_allApps", in: both,
		fragments: []fragment{{
			from: packaged,
			date: packaged + ".LastUsedTimeStop",
			columns: []column{
				{civilOrNA(packaged + ".LastUsedTimeStart"), "Last_used_start", "Last_used_start", both},
				{civil(packaged + ".LastUsedTimeStop"), "Last_used_stop", "Last_used_stop", both},
				{accessText(packaged), "Access", "AccessBlocked", both},
				{"Capabilities.StringValue", "Capability", "Capability", both},
				{"PackageFamilyNames.StringValue", "PackageName", "PackageName", both},
				{"AppNames.StringValue", "AppName", "AppName", newer},
				{"Users.StringValue", "UserSID", "UserSID", both},
				{packaged + ".Label", "Label", "Label", newer},
				{packaged + ".ID", "ID", "ID", both},
			},
			joins: append(usageJoins(packaged),
				lookup(packaged, "PackageFamilyName", "PackageFamilyNames", both),
				appNameJoin(packaged),
			),
		}},
	},
	{
		id: ReportNonPackaged, name: "B_CAM_NonPackagedApps", tsv: "B_CAM_NonPackagedApps", in: both,
		fragments: []fragment{{
			from: nonPackaged,
			date: nonPackaged + ".LastUsedTimeStop",
			columns: []column{
				{civilOrNA(nonPackaged + ".LastUsedTimeStart"), "Last_used_start", "Last_used_start", both},
				{civil(nonPackaged + ".LastUsedTimeStop"), "Last_used_stop", "Last_used_stop", both},
				{accessText(nonPackaged), "Access", "Access", both},
				{"Capabilities.StringValue", "Capability", "Capability", both},
				{"AppNames.StringValue", "AppName", "AppName", newer},
				{"BinaryFullPaths.StringValue", "Bin_full_path", "Binary_full_path", both},
				{"FileIDs.StringValue", "FileID", "FileID", both},
				{"ProgramIDs.StringValue", "ProgramID", "ProgramID", both},
				{"Users.StringValue", "UserSID", "UserSID", both},
				{nonPackaged + ".ID", "ID", "ID", both},
			},
			joins: append(usageJoins(nonPackaged),
				lookup(nonPackaged, "BinaryFullPath", "BinaryFullPaths", both),
				lookup(nonPackaged, "ProgramID", "ProgramIDs", both),
				lookup(nonPackaged, "FileID", "FileIDs", both),
				appNameJoin(nonPackaged),
			),
		}},
	},
	{
		id: ReportIdentity, name: "C_CAM_NonPackagedId", tsv: "C_CAM_NonPackagedIdRelation", in: both,
		fragments: []fragment{{
			from: identity,
			date: identity + ".LastObservedTime",
			columns: []column{
				{civil(identity + ".LastObservedTime"), "Last_observed_time", "Last_observed_time", both},
				{"BinaryFullPaths.StringValue", "Bin_full_path", "Bin_full_path", both},
				{"ProgramIDs.StringValue", "Program_hash", "Program_hash", both},
				{identity + ".ProgramID", "Program_ID", "Program_ID", both},
				{"FileIDs.StringValue", "File_hash", "File_ID_hash", both},
				{identity + ".FileID", "File_ID", "File_ID", both},
			},
			joins: []join{
				lookup(identity, "BinaryFullPath", "BinaryFullPaths", both),
				lookup(identity, "ProgramID", "ProgramIDs", both),
				lookup(identity, "FileID", "FileIDs", both),
			},
		}},
	},
	{
		id: ReportAllApps, name: "D_CAM_AllApps", tsv: "D_CAM_allApps", in: both, shape: union,
		orderAlias: "Last_used_stop",
		fragments: []fragment{
			allAppsFragment(packaged, "PackageFamilyName", "PackageFamilyNames"),
			allAppsFragment(nonPackaged, "BinaryFullPath", "BinaryFullPaths"),
		},
	},
	{
		id: ReportCountPerCapability, name: "E_CAM_CountPerCapability", in: both, shape: unionSum,
		fragments: []fragment{
			countFragment(packaged),
			countFragment(nonPackaged),
		},
	},
	{
		id: ReportPrompt, name: "F_CAM_NonPackagedPrompt", tsv: "F_CAM_NonPackagedPromptHistory", in: newer,
		fragments: []fragment{{
			from: prompt,
			date: prompt + ".ShownTime",
			columns: []column{
				{civilOrNA(prompt + ".ShownTime"), "ShownTime", "ShownTime", both},
				{"Capabilities.StringValue", "Capability", "Capability", both},
				{"FileIDs.StringValue", "FileID", "FileID", both},
				{"ProgramIDs.StringValue", "ProgramID", "ProgramID", both},
				{"Users.StringValue", "UserSID", "UserSID", both},
				{prompt + ".ID", "ID", "ID", both},
			},
			joins: append(usageJoins(prompt),
				lookup(prompt, "ProgramID", "ProgramIDs", both),
				lookup(prompt, "FileID", "FileIDs", both),
			),
		}},
	},
	{
		id: ReportCapsPerApp, name: "H_CAM_caps_per_app", tsv: "H_CAM_caps_per_App", in: both, shape: union,
		orderBy: "NumOccurrences DESC",
		fragments: []fragment{
			capsPerAppFragment(packaged, "PackageFamilyName", "PackageFamilyNames"),
			capsPerAppFragment(nonPackaged, "BinaryFullPath", "BinaryFullPaths"),
		},
	},
	{
		id: ReportPackagedFirstLast, name: "X1_CAM_PackagedApps_FirstLast", tsv: "X1_CAM_PackagedApps_First+Last", in: both,
		orderAlias: "First_used_stop",
		fragments:  []fragment{firstLastFragment(packaged, "PackageFamilyName", "PackageFamilyNames", "PackageName", "PackageName")},
	},
	{
		id: ReportNonPackagedFirstLast, name: "X2_CAM_NonPackagedApps_FirstLast", tsv: "X2_CAM_NonpackagedApps_First+Last", in: both,
		orderAlias: "First_used_stop",
		fragments:  []fragment{firstLastFragment(nonPackaged, "BinaryFullPath", "BinaryFullPaths", "Bin_full_path", "Binary_full_path")},
	},
}

func allAppsFragment(history, appCol, appTable string) fragment {
	return fragment{
		from: history,
		date: history + ".LastUsedTimeStop",
		columns: []column{
			{civil(history + ".LastUsedTimeStop"), "Last_used_stop", "Last_used_stop", both},
			{accessText(history), "Access", "AccessBlocked", older},
			{accessText(history), "Access", "Access", newer},
			{"Capabilities.StringValue", "Capability", "Capability_str", both},
			{appTable + ".StringValue", "AppIdentifier", "application_identifier", both},
			{"AppNames.StringValue", "AppName", "AppName", newer},
			{"Users.StringValue", "UserSID", "UserSID", both},
		},
		joins: append(usageJoins(history), lookup(history, appCol, appTable, both), appNameJoin(history)),
	}
}

func countFragment(history string) fragment {
	return fragment{
		from: history,
		date: history + ".LastUsedTimeStop",
		columns: []column{
			{"Capabilities.StringValue", "Capability", "Capability", both},
			{"COUNT(*)", "Count", "Count", both},
		},
		joins:   []join{lookup(history, "Capability", "Capabilities", both)},
		groupBy: []term{{history + ".Capability", both}},
	}
}

func capsPerAppFragment(history, appCol, appTable string) fragment {
	return fragment{
		from: history,
		date: history + ".LastUsedTimeStop",
		columns: []column{
			{"Capabilities.StringValue", "Capability", "Capability", both},
			{"COUNT(*)", "NumOccurrences", "Count", both},
			{accessText(history), "Access", "Access", both},
			{appTable + ".StringValue", "AppIdentifier", "Path/AppID", both},
			{"'" + NotAvailable + "'", "App", "App", older},
			{"AppNames.StringValue", "App", "App", newer},
			{"Users.StringValue", "UserSID", "UserSID", both},
		},
		joins: append(usageJoins(history), lookup(history, appCol, appTable, both), appNameJoin(history)),
		groupBy: []term{
			{"Capabilities.StringValue", both}, {history + ".AccessBlocked", both}, {appTable + ".StringValue", both},
			{"AppNames.StringValue", newer}, {"Users.StringValue", both},
		},
	}
}

func firstLastFragment(history, appCol, appTable, appAlias, appHeader string) fragment {
	return fragment{
		from: history,
		date: history + ".LastUsedTimeStop",
		columns: []column{
			{"MIN(" + civil(history+".LastUsedTimeStop") + ")", "First_used_stop", "First_used_stop", both},
			{"MAX(" + civil(history+".LastUsedTimeStop") + ")", "Last_used_stop", "Last_used_stop", both},
			{appTable + ".StringValue", appAlias, appHeader, both},
			{"Capabilities.StringValue", "Capability", "Capability", both},
			{"AppNames.StringValue", "AppName", "AppName", newer},
			{"Users.StringValue", "UserSID", "UserSID", both},
			{"COUNT(*)", "Occurrences", "Occurrences", both},
		},
		joins: append(usageJoins(history), lookup(history, appCol, appTable, both), appNameJoin(history)),
		groupBy: []term{
			{appTable + ".StringValue", both}, {"Capabilities.StringValue", both},
			{"AppNames.StringValue", newer}, {"Users.StringValue", both},
		},
	}
}
