package job_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

func TestParseState(t *testing.T) {
	for _, s := range job.States() {
		got, err := job.ParseState(string(s))
		if err != nil {
			t.Fatalf("ParseState(%q): %v", s, err)
		}
		if got != s {
			t.Errorf("ParseState(%q) = %q", s, got)
		}
	}

	for _, bad := range []string{"", "Pending", "PENDING", "done", "completed"} {
		if _, err := job.ParseState(bad); !errors.Is(err, job.ErrUnknownState) {
			t.Errorf("ParseState(%q) err = %v, want ErrUnknownState", bad, err)
		}
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range job.Types() {
		if _, err := job.ParseType(string(typ)); err != nil {
			t.Fatalf("ParseType(%q): %v", typ, err)
		}
	}
	for _, bad := range []string{"", "RUN_APP", "run-app"} {
		if _, err := job.ParseType(bad); !errors.Is(err, job.ErrUnknownType) {
			t.Errorf("ParseType(%q) err = %v, want ErrUnknownType", bad, err)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state job.State
		want  bool
	}{
		{job.StateUndefined, false},
		{job.StatePending, false},
		{job.StateRunning, false},
		{job.StateFinished, true},
		{job.StateFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestJobJSONStrictDecode(t *testing.T) {
	j := job.New(job.TypeRunApp, job.Info{"bundleId": "com.example.app"})
	data, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got job.Job
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID.String() != j.ID.String() {
		t.Errorf("ID = %q, want %q", got.ID.String(), j.ID.String())
	}
	if got.State != job.StatePending || got.Type != job.TypeRunApp {
		t.Errorf("got type=%q state=%q", got.Type, got.State)
	}
	if !got.WorkerID.IsNil() || got.DeviceUDID != "" {
		t.Error("new job should be unassigned")
	}

	bad := []byte(`{"id":"` + j.ID.String() + `","type":"run_app","state":"done"}`)
	if err := json.Unmarshal(bad, &got); !errors.Is(err, job.ErrUnknownState) {
		t.Errorf("unmarshal bad state err = %v, want ErrUnknownState", err)
	}
}

func TestInfoLookup(t *testing.T) {
	info := job.Info{
		"s":   "US",
		"f":   float64(12345),
		"n":   json.Number("678"),
		"i":   42,
		"b":   true,
		"nil": nil,
	}

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"s", "US", true},
		{"f", "12345", true},
		{"n", "678", true},
		{"i", "42", true},
		{"b", "", false},
		{"nil", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		got, ok := info.Lookup(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Lookup(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}

	if !info.Has("nil") {
		t.Error("Has should report keys holding nil")
	}
}

func TestClaimFilterMatches(t *testing.T) {
	w := id.NewWorkerID()
	other := id.NewWorkerID()
	const udid = "dev-1"

	newJob := func(mut func(*job.Job)) *job.Job {
		j := job.New(job.TypeInstallApp, nil)
		if mut != nil {
			mut(j)
		}
		return j
	}

	excluded := newJob(nil)

	tests := []struct {
		name string
		j    *job.Job
		want bool
	}{
		{"unassigned pending", newJob(nil), true},
		{"undefined state", newJob(func(j *job.Job) { j.State = job.StateUndefined }), true},
		{"running", newJob(func(j *job.Job) { j.State = job.StateRunning }), true},
		{"finished", newJob(func(j *job.Job) { j.State = job.StateFinished }), false},
		{"failed", newJob(func(j *job.Job) { j.State = job.StateFailed }), false},
		{"same worker", newJob(func(j *job.Job) { j.WorkerID = w }), true},
		{"other worker", newJob(func(j *job.Job) { j.WorkerID = other }), false},
		{"same device", newJob(func(j *job.Job) { j.DeviceUDID = udid }), true},
		{"other device", newJob(func(j *job.Job) { j.DeviceUDID = "dev-2" }), false},
		{"same worker other device", newJob(func(j *job.Job) { j.WorkerID = w; j.DeviceUDID = "dev-2" }), false},
		{"excluded", excluded, false},
	}

	f := job.ClaimFilter{WorkerID: w, DeviceUDID: udid, Exclude: []id.JobID{excluded.ID}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Matches(tt.j); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClaimFilterExcludeStringsNeverNil(t *testing.T) {
	if got := (job.ClaimFilter{}).ExcludeStrings(); got == nil {
		t.Error("ExcludeStrings returned nil for an empty exclusion set")
	}
}

func TestJobValidate(t *testing.T) {
	j := job.New(job.TypeRunApp, nil)
	if err := j.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	j.State = "weird"
	if err := j.Validate(); !errors.Is(err, job.ErrUnknownState) {
		t.Errorf("Validate err = %v, want ErrUnknownState", err)
	}
	j.State = job.StatePending
	j.Type = ""
	if err := j.Validate(); !errors.Is(err, job.ErrUnknownType) {
		t.Errorf("Validate err = %v, want ErrUnknownType", err)
	}
}
