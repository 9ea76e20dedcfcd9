package report

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wleappcam "github.com/PatricioDomingues/WLEAPPCAM"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"A_CAM_PackagedApps", "a_cam_packaged_apps.html"},
		{"C_CAM_NonPackagedId", "c_cam_non_packaged_id.html"},
		{"X1_CAM_PackagedApps_FirstLast", "x1_cam_packaged_apps_first_last.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.name))
		})
	}
}

func TestWriter_Write(t *testing.T) {
	folder := "/out/WindowsCapabilityAccess"

	tests := []struct {
		name      string
		report    *wleappcam.Report
		wantFiles []string
		wantTSV   string
	}{
		{
			"with tsv",
			&wleappcam.Report{
				ID: wleappcam.ReportPackaged, Name: "A_CAM_PackagedApps", TSVName: "A_CAM_allApps",
				Source: "CapabilityAccessManager.db", Filter: "[2024-01-01,--]",
				Headers: []string{"Capability", "Count", "Blob"},
				Rows:    [][]interface{}{{"<webcam>", int64(2), []byte{0xca, 0xfe}}, {"microphone", nil, nil}},
			},
			[]string{
				filepath.Join(folder, "a_cam_packaged_apps.html"),
				filepath.Join(folder, TSVFolder, "A_CAM_allApps.tsv"),
			},
			"Capability\tCount\tBlob\n<webcam>\t2\tcafe\nmicrophone\t\t\n",
		},
		{
			"without tsv",
			&wleappcam.Report{
				ID: wleappcam.ReportCountPerCapability, Name: "E_CAM_CountPerCapability",
				Headers: []string{"Capability", "Count"},
				Rows:    [][]interface{}{{"webcam", int64(2)}},
			},
			[]string{filepath.Join(folder, "e_cam_count_per_capability.html")},
			"",
		},
		{
			"plus in tsv name",
			&wleappcam.Report{
				ID: wleappcam.ReportPackagedFirstLast, Name: "X1_CAM_PackagedApps_FirstLast", TSVName: "X1_CAM_PackagedApps_First+Last",
				Headers: []string{"App"},
				Rows:    [][]interface{}{{"Camera"}},
			},
			[]string{
				filepath.Join(folder, "x1_cam_packaged_apps_first_last.html"),
				filepath.Join(folder, TSVFolder, "X1_CAM_PackagedApps_First+Last.tsv"),
			},
			"App\nCamera\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			w := New(fs, folder)
			require.NoError(t, w.Write(tt.report))
			assert.Equal(t, tt.wantFiles, w.Written)

			html, err := afero.ReadFile(fs, tt.wantFiles[0])
			require.NoError(t, err)
			assert.Contains(t, string(html), "<title>"+tt.report.Name+"</title>")
			for _, h := range tt.report.Headers {
				assert.Contains(t, string(html), "<th>"+h+"</th>")
			}

			if tt.wantTSV == "" {
				ok, err := afero.DirExists(fs, filepath.Join(folder, TSVFolder))
				require.NoError(t, err)
				assert.False(t, ok)
				return
			}
			tsv, err := afero.ReadFile(fs, tt.wantFiles[1])
			require.NoError(t, err)
			assert.Equal(t, tt.wantTSV, string(tsv))
		})
	}
}

func TestWriter_escapes(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := New(fs, "/out")
	require.NoError(t, w.Write(&wleappcam.Report{
		Name:    "B_CAM_NonPackagedApps",
		Headers: []string{"Binary_full_path"},
		Rows:    [][]interface{}{{"<script>alert(1)</script>"}},
	}))

	html, err := afero.ReadFile(fs, "/out/b_cam_non_packaged_apps.html")
	require.NoError(t, err)
	assert.NotContains(t, string(html), "<script>")
	assert.Contains(t, string(html), "&lt;script&gt;")
}

func TestWriter_Write_plainText(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := New(fs, "/out")
	require.NoError(t, w.Write(&wleappcam.Report{
		Name:    "B_CAM_NonPackagedApps",
		TSVName: "B_CAM_allApps",
		Headers: []string{"Binary_full_path", "User"},
		Rows:    [][]interface{}{{"R&D  O'Brien", "y"}},
	}))

	html, err := afero.ReadFile(fs, "/out/b_cam_non_packaged_apps.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "<td>R&amp;D  O&#39;Brien</td>")
	assert.NotContains(t, string(html), "&amp;amp;")

	tsv, err := afero.ReadFile(fs, filepath.Join("/out", TSVFolder, "B_CAM_allApps.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "Binary_full_path\tUser\nR&D  O'Brien\ty\n", string(tsv))
}

func TestWriter_Write_placeholder(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := New(fs, "/out")
	require.NoError(t, w.Write(&wleappcam.Report{
		Name:        "A_CAM_PackagedApps",
		TSVName:     "A_CAM_allApps",
		Headers:     []string{"Capability"},
		Rows:        [][]interface{}{{wleappcam.EmptyPlaceholder}},
		Placeholder: true,
	}))
	assert.Equal(t, []string{"/out/a_cam_packaged_apps.html"}, w.Written)

	ok, err := afero.DirExists(fs, filepath.Join("/out", TSVFolder))
	require.NoError(t, err)
	assert.False(t, ok)
}
