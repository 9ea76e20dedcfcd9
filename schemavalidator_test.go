package wleappcam

import "testing"

func Test_validateSchema(t *testing.T) {
	type args struct {
		config []byte
	}
	tests := []struct {
		name      string
		args      args
		wantFlaws bool
		wantErr   bool
	}{
		{"valid", args{[]byte(`{"debug": {"show_SQL": true}, "date_range": {"start_date": "NONE"}}`)}, false, false},
		{"empty", args{[]byte(`{}`)}, false, false},
		{"wrong type", args{[]byte(`{"debug": {"show_SQL": "yes"}}`)}, true, false},
		{"bad date", args{[]byte(`{"date_range": {"start_date": "01.02.2024"}}`)}, true, false},
		{"bad algorithm", args{[]byte(`{"database": {"digest_algorithm": "crc32"}}`)}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFlaws, err := validateSchema(tt.args.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchema() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if (len(gotFlaws) > 0) != tt.wantFlaws {
				t.Errorf("validateSchema() = %v, want flaws %v", gotFlaws, tt.wantFlaws)
			}
		})
	}
}
