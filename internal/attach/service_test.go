package attach

import "testing"

func TestObjectKey(t *testing.T) {
	got := ObjectKey("tsk_1", "att_9", "report.pdf")
	want := "tsk_1/att_9/report.pdf"
	if got != want {
		t.Fatalf("ObjectKey = %q, want %q", got, want)
	}
}
