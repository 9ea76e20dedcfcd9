package wleappcam

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatricioDomingues/WLEAPPCAM/camtest"
)

func TestBuild_headers(t *testing.T) {
	tests := []struct {
		name string
		id   ReportID
		tag  VersionTag
		want []string
	}{
		{"A 23H2", ReportPackaged, W23H2, []string{
			"Last_used_start", "Last_used_stop", "AccessBlocked", "Capability", "PackageName", "UserSID", "ID",
		}},
		{"A 24H2", ReportPackaged, W24H2Drifted, []string{
			"Last_used_start", "Last_used_stop", "AccessBlocked", "Capability", "PackageName", "AppName", "UserSID", "Label", "ID",
		}},
		{"B 23H2", ReportNonPackaged, W23H2Drifted, []string{
			"Last_used_start", "Last_used_stop", "Access", "Capability", "Binary_full_path", "FileID", "ProgramID", "UserSID", "ID",
		}},
		{"B 24H2", ReportNonPackaged, W24H2, []string{
			"Last_used_start", "Last_used_stop", "Access", "Capability", "AppName", "Binary_full_path", "FileID", "ProgramID", "UserSID", "ID",
		}},
		{"C", ReportIdentity, W24H2, []string{
			"Last_observed_time", "Bin_full_path", "Program_hash", "Program_ID", "File_ID_hash", "File_ID",
		}},
		{"D 23H2", ReportAllApps, W23H2, []string{
			"Last_used_stop", "AccessBlocked", "Capability_str", "application_identifier", "UserSID",
		}},
		{"D 24H2", ReportAllApps, W24H2, []string{
			"Last_used_stop", "Access", "Capability_str", "application_identifier", "AppName", "UserSID",
		}},
		{"E", ReportCountPerCapability, W23H2, []string{"Capability", "Count"}},
		{"F", ReportPrompt, W24H2, []string{"ShownTime", "Capability", "FileID", "ProgramID", "UserSID", "ID"}},
		{"H", ReportCapsPerApp, W23H2, []string{"Capability", "Count", "Access", "Path/AppID", "App", "UserSID"}},
		{"X1", ReportPackagedFirstLast, W24H2, []string{
			"First_used_stop", "Last_used_stop", "PackageName", "Capability", "AppName", "UserSID", "Occurrences",
		}},
		{"X2", ReportNonPackagedFirstLast, W23H2, []string{
			"First_used_stop", "Last_used_stop", "Binary_full_path", "Capability", "UserSID", "Occurrences",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Build(tt.id, tt.tag, DateRange{}, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Headers)
			assert.False(t, q.Empty())
		})
	}
}

func TestBuild_errors(t *testing.T) {
	_, err := Build("Z", W23H2, DateRange{}, false)
	assert.True(t, errors.Is(err, ErrUnknownReport), "Build() error = %v", err)

	_, err = Build(ReportPackaged, Unknown, DateRange{}, false)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion), "Build() error = %v", err)

	q, err := Build(ReportPrompt, W23H2, DateRange{}, true)
	require.NoError(t, err)
	assert.True(t, q.Empty())
	assert.Empty(t, q.Headers)
	assert.Equal(t, "F_CAM_NonPackagedPrompt", q.Name)
}

func TestBuild_sql(t *testing.T) {
	rng, err := ParseDateRange("2024-02-01", "")
	require.NoError(t, err)

	q, err := Build(ReportPackaged, W23H2, rng, true)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "WHERE (PackagedUsageHistory.LastUsedTimeStop >= 133512192000000000)")
	assert.True(t, strings.HasSuffix(q.SQL, "ORDER BY PackagedUsageHistory.LastUsedTimeStop"), q.SQL)
	assert.NotContains(t, q.SQL, "AppNames")

	q, err = Build(ReportAllApps, W24H2, rng, true)
	require.NoError(t, err)
	require.Len(t, q.Fragments, 2)
	assert.Equal(t, 1, strings.Count(q.SQL, "UNION ALL"))
	assert.Equal(t, 2, strings.Count(q.SQL, "WHERE"))
	assert.True(t, strings.HasSuffix(q.SQL, "ORDER BY Last_used_stop"), q.SQL)

	q, err = Build(ReportAllApps, W24H2, DateRange{}, false)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "ORDER BY")
	assert.NotContains(t, q.SQL, "WHERE")

	q, err = Build(ReportCapsPerApp, W23H2, DateRange{}, false)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q.SQL, "ORDER BY NumOccurrences DESC"), q.SQL)
}

func TestBuild_execute(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	stores := map[VersionTag]string{
		W23H2: camtest.NewStore(t, filepath.Join(dir, "23H2"), camtest.W23H2),
		W24H2: camtest.NewStore(t, filepath.Join(dir, "24H2"), camtest.W24H2),
	}
	fromFeb, err := ParseDateRange("2024-02-01", "")
	require.NoError(t, err)
	// both bounds sit exactly on a LastUsedTimeStop of the sample data
	start, end := camtest.CameraStop, camtest.ZoomMicStop
	closed := DateRange{Start: &start, End: &end}
	beforeEnd := end - 1
	endsEarly := DateRange{Start: &start, End: &beforeEnd}

	tests := []struct {
		name     string
		rng      DateRange
		want23H2 map[ReportID]int
		want24H2 map[ReportID]int
	}{
		{
			"all", DateRange{},
			map[ReportID]int{"A": 2, "B": 3, "C": 1, "D": 5, "E": 2, "F": 0, "H": 4, "X1": 2, "X2": 2},
			map[ReportID]int{"A": 2, "B": 3, "C": 1, "D": 5, "E": 2, "F": 2, "H": 4, "X1": 2, "X2": 2},
		},
		{
			"from february", fromFeb,
			map[ReportID]int{"A": 1, "B": 2, "C": 0, "D": 3, "E": 2, "F": 0, "H": 3, "X1": 1, "X2": 2},
			map[ReportID]int{"A": 1, "B": 2, "C": 0, "D": 3, "E": 2, "F": 0, "H": 3, "X1": 1, "X2": 2},
		},
		{
			"closed range", closed,
			map[ReportID]int{"A": 1, "B": 1, "C": 1, "D": 2, "E": 2, "F": 0, "H": 2, "X1": 1, "X2": 1},
			map[ReportID]int{"A": 1, "B": 1, "C": 1, "D": 2, "E": 2, "F": 1, "H": 2, "X1": 1, "X2": 1},
		},
		{
			"end before last stop", endsEarly,
			map[ReportID]int{"A": 1, "B": 0, "C": 1, "D": 1, "E": 1, "F": 0, "H": 1, "X1": 1, "X2": 0},
			map[ReportID]int{"A": 1, "B": 0, "C": 1, "D": 1, "E": 1, "F": 1, "H": 1, "X1": 1, "X2": 0},
		},
	}
	for _, tt := range tests {
		for tag, want := range map[VersionTag]map[ReportID]int{W23H2: tt.want23H2, W24H2: tt.want24H2} {
			t.Run(tt.name+" "+tag.String(), func(t *testing.T) {
				store, err := Open(stores[tag])
				require.NoError(t, err)
				defer store.Close()

				for _, id := range Reports() {
					q, err := Build(id, tag, tt.rng, true)
					require.NoError(t, err)
					if q.Empty() {
						assert.Zero(t, want[id], id)
						continue
					}
					columns, rows, err := store.QueryAll(q.SQL)
					require.NoError(t, err, q.SQL)
					assert.Len(t, rows, want[id], id)
					if len(rows) > 0 {
						assert.Len(t, columns, len(q.Headers), id)
					}
				}
			})
		}
	}
}

func TestBuild_countPerCapability(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	store, err := Open(camtest.NewStore(t, dir, camtest.W24H2))
	require.NoError(t, err)
	defer store.Close()

	q, err := Build(ReportCountPerCapability, W24H2, DateRange{}, false)
	require.NoError(t, err)
	assert.Equal(t, "Count", q.OrderColumn)
	assert.Empty(t, q.TSVName)

	_, rows, err := store.QueryAll(q.SQL)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"webcam", int64(2)}, {"microphone", int64(3)}}, rows)
}

func TestBuild_capsPerApp(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	tests := []struct {
		name    string
		variant camtest.Variant
		tag     VersionTag
		wantApp string
	}{
		{"23H2", camtest.W23H2, W23H2, NotAvailable},
		{"24H2", camtest.W24H2, W24H2, "Zoom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(camtest.NewStore(t, filepath.Join(dir, tt.name), tt.variant))
			require.NoError(t, err)
			defer store.Close()

			q, err := Build(ReportCapsPerApp, tt.tag, DateRange{}, false)
			require.NoError(t, err)
			_, rows, err := store.QueryAll(q.SQL)
			require.NoError(t, err)
			require.Len(t, rows, 4)

			// the desktop app used the microphone twice
			assert.Equal(t, []interface{}{
				"microphone", int64(2), "Access OK", "C:#Program Files#Zoom#bin#Zoom.exe", tt.wantApp, "S-1-5-21-1000",
			}, rows[0])
			for _, row := range rows[1:] {
				assert.Equal(t, int64(1), row[1])
			}
		})
	}
}

func TestBuild_firstLast(t *testing.T) {
	dir := setup(t)
	defer cleanup(t, dir)

	store, err := Open(camtest.NewStore(t, dir, camtest.W23H2))
	require.NoError(t, err)
	defer store.Close()

	q, err := Build(ReportNonPackagedFirstLast, W23H2, DateRange{}, true)
	require.NoError(t, err)
	assert.Equal(t, "First_used_stop", q.OrderColumn)

	_, rows, err := store.QueryAll(q.SQL)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// microphone, used in january and march, sorts first
	assert.Equal(t, "microphone", rows[0][3])
	assert.Equal(t, int64(2), rows[0][5])
	assert.NotEqual(t, rows[0][0], rows[0][1])
	assert.Equal(t, "webcam", rows[1][3])
	assert.Equal(t, rows[1][0], rows[1][1])
}

func TestReportID_Name(t *testing.T) {
	assert.Equal(t, "A_CAM_PackagedApps", ReportPackaged.Name())
	assert.Equal(t, "G_[IDs_in_amcache]", ReportAmCache.Name())
	assert.Equal(t, "", ReportID("Z").Name())
	assert.Len(t, Reports(), 9)
}
