package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutFromExpire(t *testing.T) {
	tests := []struct {
		name string
		ms   int32
		def  time.Duration
		want time.Duration
		kind TimeoutKind
	}{
		{name: "server default", ms: -1, def: 10 * time.Second, want: 10 * time.Second, kind: TimeoutDefault},
		{name: "never", ms: 0, def: 10 * time.Second, want: 0, kind: TimeoutNever},
		{name: "explicit", ms: 5000, def: 10 * time.Second, want: 5 * time.Second, kind: TimeoutExplicit},
		{name: "default never", ms: -1, def: 0, want: 0, kind: TimeoutDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to := TimeoutFromExpire(tt.ms)
			assert.Equal(t, tt.kind, to.Kind)
			assert.Equal(t, tt.want, to.Resolve(tt.def))
		})
	}
}

func TestParseUrgency(t *testing.T) {
	tests := []struct {
		in      string
		want    Urgency
		wantErr bool
	}{
		{"low", UrgencyLow, false},
		{"Normal", UrgencyNormal, false},
		{"2", UrgencyCritical, false},
		{"", UrgencyNormal, false},
		{"loud", UrgencyNormal, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUrgency(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampUrgency(t *testing.T) {
	assert.Equal(t, UrgencyLow, ClampUrgency(0))
	assert.Equal(t, UrgencyCritical, ClampUrgency(2))
	assert.Equal(t, UrgencyNormal, ClampUrgency(7))
	assert.Equal(t, UrgencyNormal, ClampUrgency(-3))
}

func TestDismissReason_CloseReason(t *testing.T) {
	tests := []struct {
		reason DismissReason
		want   CloseReason
	}{
		{ReasonTimeout, CloseReasonExpired},
		{ReasonUser, CloseReasonDismissed},
		{ReasonAction, CloseReasonDismissed},
		{ReasonCall, CloseReasonClosed},
		{ReasonReplaced, CloseReasonUndefined},
		{ReasonUndefined, CloseReasonUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reason.CloseReason())
		})
	}
}

func TestCloseReasonString(t *testing.T) {
	assert.Equal(t, "expired", CloseReasonExpired.String())
	assert.Equal(t, "dismissed", CloseReasonDismissed.String())
	assert.Equal(t, "closed", CloseReasonClosed.String())
	assert.Equal(t, "undefined", CloseReasonUndefined.String())
	assert.Equal(t, "unknown", CloseReason(99).String())
}

func TestNotification_Actions(t *testing.T) {
	n := Notification{Actions: []Action{{Key: "reply", Label: "Reply"}, {Key: "default", Label: "Open"}}}

	assert.True(t, n.HasAction("reply"))
	assert.False(t, n.HasAction("archive"))

	key, ok := n.DefaultAction()
	require.True(t, ok)
	assert.Equal(t, "default", key)

	assert.Equal(t, []Action{{Key: "reply", Label: "Reply"}}, n.ButtonActions())

	n.Actions = n.Actions[:1]
	key, ok = n.DefaultAction()
	require.True(t, ok)
	assert.Equal(t, "reply", key)

	n.Actions = nil
	_, ok = n.DefaultAction()
	assert.False(t, ok)
}

func TestNotification_CloneIsIndependent(t *testing.T) {
	n := Notification{
		Actions: []Action{{Key: "a", Label: "A"}},
		Hints:   Hints{Extra: map[string]string{"x": "1"}},
	}
	c := n.Clone()
	c.Actions[0].Label = "changed"
	c.Hints.Extra["x"] = "2"

	assert.Equal(t, "A", n.Actions[0].Label)
	assert.Equal(t, "1", n.Hints.Extra["x"])
}

func TestNotification_BodyTruncated(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		maxLen int
		want   string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"whitespace collapsed", "a\n\n  b", 10, "a b"},
		{"tiny limit", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"multibyte", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Notification{Body: tt.body}
			assert.Equal(t, tt.want, n.BodyTruncated(tt.maxLen))
		})
	}
}

func TestRect(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 20, H: 10}
	assert.True(t, r.Contains(10, 10))
	assert.True(t, r.Contains(29.9, 19.9))
	assert.False(t, r.Contains(30, 15))
	assert.False(t, Rect{}.Contains(0, 0))

	u := r.Union(Rect{X: 0, Y: 25, W: 5, H: 5})
	assert.Equal(t, Rect{X: 0, Y: 10, W: 30, H: 20}, u)
	assert.Equal(t, r, Rect{}.Union(r))
}
