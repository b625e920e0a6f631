package cache

import (
	"encoding/json"
	"testing"
)

func TestEntry_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		in        Entry
		wantErr   bool
		wantData  bool
		wantState Status
	}{
		{
			name:      "success drops error",
			in:        Entry{Status: StatusSuccess, Data: json.RawMessage(`1`), Err: &ErrorInfo{Code: CodeUnknown}},
			wantData:  true,
			wantState: StatusSuccess,
		},
		{
			name:      "success without data",
			in:        Entry{Status: StatusSuccess},
			wantData:  true,
			wantState: StatusSuccess,
		},
		{
			name:      "error without info",
			in:        Entry{Status: StatusError},
			wantErr:   true,
			wantState: StatusError,
		},
		{
			name:      "error keeps last good data",
			in:        Failure(&ErrorInfo{Code: CodeTransient}, json.RawMessage(`[1]`)),
			wantErr:   true,
			wantData:  true,
			wantState: StatusError,
		},
		{
			name:      "unknown status",
			in:        Entry{Status: "weird"},
			wantState: StatusIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if got.Status != tt.wantState {
				t.Errorf("Status = %v, want %v", got.Status, tt.wantState)
			}
			if (got.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", got.Err, tt.wantErr)
			}
			if (got.Data != nil) != tt.wantData {
				t.Errorf("Data = %s, wantData %v", got.Data, tt.wantData)
			}
		})
	}
}

func TestLoading_KeepsData(t *testing.T) {
	prev := Success(json.RawMessage(`{"id":1}`))
	got := Loading(prev)

	if got.Status != StatusLoading {
		t.Fatalf("Status = %v", got.Status)
	}
	if string(got.Data) != `{"id":1}` {
		t.Errorf("Data = %s", got.Data)
	}
	if got.Hydrated {
		t.Error("loading entries are never hydrated")
	}
}
