package core_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trubo/mail-gateway/internal/core"
)

func valid() core.MailRequest {
	return core.MailRequest{To: core.Recipients{"a@b.com"}, Subject: "s", Text: "t"}
}

func TestValidateBatch(t *testing.T) {
	require.Nil(t, core.ValidateBatch([]core.MailRequest{valid()}))

	err := core.ValidateBatch(nil)
	require.NotNil(t, err)
	require.Contains(t, err.Details, "batch")

	bad := valid()
	bad.To = core.Recipients{"not-an-address"}
	err = core.ValidateBatch([]core.MailRequest{valid(), bad})
	require.NotNil(t, err)
	require.Len(t, err.Details, 1)
	require.Contains(t, err.Details, "1")
}

func TestValidateRequest_BodyRequired(t *testing.T) {
	r := valid()
	r.Text = ""
	err := core.ValidateBatch([]core.MailRequest{r})
	require.NotNil(t, err)

	r.HTML = "<b>hi</b>"
	require.Nil(t, core.ValidateBatch([]core.MailRequest{r}))
}

func TestValidateRequest_AttachmentCap(t *testing.T) {
	r := valid()
	for i := 0; i < 4; i++ {
		r.Attachments = append(r.Attachments, core.Attachment{Name: "f.txt"})
	}
	require.NotNil(t, core.ValidateBatch([]core.MailRequest{r}))
}

func TestRecipients_StringOrArray(t *testing.T) {
	var single struct {
		To core.Recipients `json:"to"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"to":"a@b.com"}`), &single))
	require.Equal(t, core.Recipients{"a@b.com"}, single.To)

	var many struct {
		To core.Recipients `json:"to"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"to":["a@b.com","c@d.com"]}`), &many))
	require.Len(t, many.To, 2)
}

func TestRedacted_StripsCredentials(t *testing.T) {
	j := core.MailJob{
		To: core.Recipients{"a@b.com"}, Subject: "s",
		ProviderKey: "re_secret", SMTPUser: "u", SMTPAppPassword: "p", SMTPFrom: "f",
	}
	r := j.Redacted()
	require.Empty(t, r.ProviderKey)
	require.Empty(t, r.SMTPUser)
	require.Empty(t, r.SMTPAppPassword)
	require.Empty(t, r.SMTPFrom)
	require.Equal(t, j.To, r.To)
}

func TestParsePriority(t *testing.T) {
	p, err := core.ParsePriority("")
	require.NoError(t, err)
	require.Equal(t, core.PriorityMedium, p)

	_, err = core.ParsePriority("urgent")
	require.Error(t, err)
}
