package emailsvc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func testConfig() *core.Config {
	return &core.Config{
		AppName:          "Academia",
		SendgridApiKey:   "sg-key",
		DefaultFromEmail: mail.Address{Name: "Academia", Address: "noreply@academia.test"},
	}
}

func TestConsoleService_SendMessages(t *testing.T) {
	svc := NewConsoleService(testConfig(), nopLogger{})
	var out bytes.Buffer
	svc.SetOutput(&out)

	withAttachment := &core.EmailMessage{
		To:      []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
		Subject: "[Academia] report",
		BodyStr: "see attached",
	}
	require.NoError(t, withAttachment.Attach(strings.NewReader("a,b"), "report.csv", "text/csv"))

	svc.SendMessages(
		&core.EmailMessage{
			To:      []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
			Cc:      []mail.Address{{Address: "hod@test.cd"}},
			Subject: "[Academia] course CS101 is APPROVED",
			BodyStr: "approved",
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "x@test.cd"}}, Subject: "no content"},
		withAttachment,
	)
	svc.Wait()

	sent := svc.Sent()
	require.Len(t, sent, 2)

	body := out.String()
	assert.Contains(t, body, `From: "Academia" <noreply@academia.test>`)
	assert.Contains(t, body, "Subject: [Academia] course CS101 is APPROVED")
	assert.Contains(t, body, `To: "Jane" <jane@test.cd>`)
	assert.Contains(t, body, "CC: <hod@test.cd>")
	assert.Contains(t, body, "Content-Type: multipart/mixed; boundary=")
	assert.Contains(t, body, "attachment; filename=report.csv")
	assert.NotContains(t, body, "no recipients")
}

func TestSendgridService_SendMessages(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]interface{}
		auth     string
		done     = make(chan struct{}, 1)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(data, &payload)

		mu.Lock()
		payloads = append(payloads, payload)
		auth = r.Header.Get("Authorization")
		mu.Unlock()

		assert.Equal(t, sendgridEndpoint, r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		done <- struct{}{}
	}))
	defer srv.Close()

	svc := NewSendgridService(testConfig(), nopLogger{})
	svc.host = srv.URL

	svc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
		Bcc:     []mail.Address{{Address: "audit@test.cd"}},
		Subject: "[Academia] program BSC is REJECTED",
		BodyStr: "rejected",
	})
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.Equal(t, "Bearer sg-key", auth)

	payload := payloads[0]
	from := payload["from"].(map[string]interface{})
	assert.Equal(t, "noreply@academia.test", from["email"])

	p := payload["personalizations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "[Academia] program BSC is REJECTED", p["subject"])
	assert.Equal(t, "jane@test.cd", p["to"].([]interface{})[0].(map[string]interface{})["email"])
	assert.Equal(t, "audit@test.cd", p["bcc"].([]interface{})[0].(map[string]interface{})["email"])

	content := payload["content"].([]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "rejected", content[0].(map[string]interface{})["value"])
}
