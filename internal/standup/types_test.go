package standup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   RawAnswers
		want RawAnswers
	}{
		{
			name: "all blank",
			in:   RawAnswers{},
			want: RawAnswers{Yesterday: NoResponse, Today: NoResponse, Blockers: NoBlockers},
		},
		{
			name: "whitespace only is blank",
			in:   RawAnswers{Yesterday: "  \n", Today: "\t", Blockers: " "},
			want: RawAnswers{Yesterday: NoResponse, Today: NoResponse, Blockers: NoBlockers},
		},
		{
			name: "text kept verbatim",
			in:   RawAnswers{Yesterday: " fixed bug ", Today: "review", Blockers: ""},
			want: RawAnswers{Yesterday: " fixed bug ", Today: "review", Blockers: NoBlockers},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestDateKey(t *testing.T) {
	t.Parallel()

	sofia, err := time.LoadLocation("Europe/Sofia")
	require.NoError(t, err)

	at := time.Date(2024, 6, 3, 22, 30, 0, 0, time.UTC)
	require.Equal(t, "2024-06-03", DateKey(at, time.UTC))
	require.Equal(t, "2024-06-04", DateKey(at, sofia))
}

func TestSubmissionStateString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "stored", StateStored.String())
	require.Equal(t, "acknowledged", StateAcknowledged.String())
	require.Equal(t, "unknown", SubmissionState(99).String())
}

func TestRender(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"Update, Jun 3\nFind all reports for Update, Jun 3, 2024 in the thread. 🧵",
		RenderRoot("2024-06-03"))
	require.Equal(t, "Daily Standup Updates - bogus", RenderRoot("bogus"))

	u := DailyUpdate{
		Yesterday:   "a",
		Today:       "b",
		Blockers:    NoBlockers,
		SubmittedAt: time.Date(2024, 6, 3, 14, 5, 0, 0, time.UTC),
	}
	got := RenderUpdate("", u)
	require.Equal(t,
		"Unknown User\n\nYesterday:\na\n\nToday:\nb\n\nBlockers:\nNone\n\nSubmitted at Jun 3, 2024, 2:05 PM",
		got)
}
