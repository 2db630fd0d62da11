package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChatTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ChatTarget
		wantErr bool
	}{
		{in: "", want: ChatTarget{}},
		{in: "-100123", want: ChatTarget{ChatID: -100123}},
		{in: " -100123:42 ", want: ChatTarget{ChatID: -100123, ThreadID: 42}},
		{in: "abc", wantErr: true},
		{in: "0", wantErr: true},
		{in: "5:x", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseChatTarget(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMessageRefRoundTrip(t *testing.T) {
	t.Parallel()

	ref := MessageRef{ChatID: -100, ThreadID: 7, MessageID: 55}
	got, err := ParseMessageRef(ref.String())
	require.NoError(t, err)
	require.Equal(t, ref, got)

	_, err = ParseMessageRef("1:2")
	require.ErrorIs(t, err, ErrBadMessageRef)
	_, err = ParseMessageRef("1:0:0")
	require.ErrorIs(t, err, ErrBadMessageRef)
}
