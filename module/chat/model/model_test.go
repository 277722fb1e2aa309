package model

import (
	"testing"
	"time"

	"EchoChat/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentValidate(t *testing.T) {
	ok := &Attachment{Name: "a.png", Type: AttachmentPNG, Size: 1024}
	require.NoError(t, ok.Validate())

	var nilAtt *Attachment
	require.NoError(t, nilAtt.Validate())

	cases := []*Attachment{
		{Name: "", Type: AttachmentPNG, Size: 1},
		{Name: "a.gif", Type: "image/gif", Size: 1},
		{Name: "a.mp4", Type: AttachmentMP4, Size: MaxAttachmentSize + 1},
		{Name: "a.jpg", Type: AttachmentJPEG, Size: 0},
	}
	for _, c := range cases {
		err := c.Validate()
		require.Error(t, err, c.Name)
		assert.True(t, errs.ErrAttachment.Is(err))
	}

	edge := &Attachment{Name: "big.mp4", Type: AttachmentMP4, Size: MaxAttachmentSize}
	assert.NoError(t, edge.Validate())
}

func TestNewMessageValidate(t *testing.T) {
	n := &NewMessage{ConversationID: "c", SenderID: "u", Text: "hi"}
	require.NoError(t, n.Validate())

	n.Text = "   "
	require.Error(t, n.Validate())

	n.Attachment = &Attachment{Name: "x.jpg", Type: AttachmentJPEG, Size: 10}
	require.NoError(t, n.Validate())

	n.SenderID = ""
	assert.True(t, errs.ErrArgs.Is(n.Validate()))
}

func TestMessageLess(t *testing.T) {
	t0 := time.Unix(100, 0)
	a := Message{ID: "a", CreatedAt: t0}
	b := Message{ID: "b", CreatedAt: t0}
	c := Message{ID: "0", CreatedAt: t0.Add(time.Second)}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
}

func TestNewConversationMembers(t *testing.T) {
	n := &NewConversation{CreatorID: "x", MemberIDs: []string{"y", "x", "", "z", "y"}}
	assert.Equal(t, []string{"x", "y", "z"}, n.Members())
	require.NoError(t, n.Validate())

	solo := &NewConversation{CreatorID: "x", MemberIDs: []string{"x"}}
	assert.Error(t, solo.Validate())
}

func TestSummaryHelpers(t *testing.T) {
	s := ConversationSummary{
		Members: []Member{{MemberID: "x"}, {MemberID: "y"}},
	}
	assert.Nil(t, s.Latest())
	assert.Equal(t, []string{"x", "y"}, s.MemberIDs())
	assert.True(t, s.HasMember("y"))
	assert.False(t, s.HasMember("z"))

	s.Messages = []Message{{ID: "m1"}}
	require.NotNil(t, s.Latest())
	assert.Equal(t, "m1", s.Latest().ID)
}
