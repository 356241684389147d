package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/custodia-labs/docvault-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docvault-core/internal/core/services"
	"github.com/custodia-labs/docvault-core/internal/extractors"
	"github.com/custodia-labs/docvault-core/internal/postprocessors"
)

type testStack struct {
	server *httptest.Server
	tokens *auth.Adapter
	queue  *mocks.MockTaskQueue
	ledger *mocks.MockLedger
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	documentStore := mocks.NewMockDocumentStore()
	chunkStore := mocks.NewMockChunkStore()
	chunkIndex := mocks.NewMockChunkIndex()
	blobStore := mocks.NewMockBlobStore()
	ledger := mocks.NewMockLedger()
	lock := mocks.NewMockLock()
	queue := mocks.NewMockTaskQueue()
	tokens := auth.NewAdapter("test-secret")

	queryService := services.NewQueryService(services.QueryConfig{
		ChunkStore: chunkStore,
		ChunkIndex: chunkIndex,
		Embedder:   mocks.NewMockEmbedding(),
		Generator:  mocks.NewMockGeneration("the answer"),
		Pipeline:   postprocessors.DefaultPipeline(),
	})
	ingestionService := services.NewIngestionService(services.IngestionConfig{
		DocumentStore:     documentStore,
		ChunkStore:        chunkStore,
		ChunkIndex:        chunkIndex,
		BlobStore:         blobStore,
		Ledger:            ledger,
		Lock:              lock,
		Extractors:        extractors.DefaultRegistry(),
		Query:             queryService,
		MaxUploadAttempts: 3,
		UploadBackoff:     time.Millisecond,
		LockWait:          100 * time.Millisecond,
	})
	documentService := services.NewDocumentService(documentStore, chunkStore, chunkIndex, blobStore, ledger, nil)

	srv := NewServer(DefaultConfig(), ingestionService, queryService, documentService, tokens, queue, nil, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testStack{
		server: ts,
		tokens: tokens,
		queue:  queue,
		ledger: ledger,
	}
}

func (ts *testStack) token(t *testing.T, identity string) string {
	t.Helper()
	token, err := ts.tokens.Mint(identity, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return token
}

func (ts *testStack) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, data
}

// upload drives a document through upload and registration over HTTP,
// returning its ID
func (ts *testStack) upload(t *testing.T, token, filename, content, visibility string) string {
	t.Helper()

	resp, data := ts.do(t, "POST", "/api/v1/documents", token, uploadDocumentRequest{
		Filename:   filename,
		Content:    []byte(content),
		Visibility: visibility,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload returned %d: %s", resp.StatusCode, data)
	}

	var uploaded uploadDocumentResponse
	if err := json.Unmarshal(data, &uploaded); err != nil {
		t.Fatalf("failed to decode upload response: %v", err)
	}
	if uploaded.Registration == nil || uploaded.Registration.TxBytes == "" {
		t.Fatal("expected an unsigned registration transaction")
	}
	if uploaded.Document.State != domain.StateAwaitingSignature {
		t.Fatalf("expected awaiting_signature, got %s", uploaded.Document.State)
	}

	docID := uploaded.Document.DocumentID
	signedRef := ts.ledger.SignedRef(uploaded.Registration)

	resp, data = ts.do(t, "POST", "/api/v1/documents/"+docID+"/registration", token,
		completeRegistrationRequest{SignedTxRef: signedRef})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("registration returned %d: %s", resp.StatusCode, data)
	}
	return docID
}

func TestAuthRequired(t *testing.T) {
	ts := newTestStack(t)

	resp, _ := ts.do(t, "GET", "/api/v1/documents", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/v1/documents", "garbage-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", resp.StatusCode)
	}
}

func TestMintToken(t *testing.T) {
	ts := newTestStack(t)

	resp, data := ts.do(t, "POST", "/api/v1/auth/token", "", mintTokenRequest{Identity: "0xalice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}

	var minted mintTokenResponse
	if err := json.Unmarshal(data, &minted); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if minted.Token == "" {
		t.Fatal("expected non-empty token")
	}

	resp, _ = ts.do(t, "GET", "/api/v1/documents", minted.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected minted token to authenticate, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "POST", "/api/v1/auth/token", "", mintTokenRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty identity, got %d", resp.StatusCode)
	}
}

func TestUploadAndRegisterFlow(t *testing.T) {
	ts := newTestStack(t)
	token := ts.token(t, "0xalice")

	docID := ts.upload(t, token, "notes.txt", "the treasury keys rotate quarterly", "private")

	// Registration queues an indexing task
	task, err := ts.queue.DequeueWithTimeout(context.Background(), 1)
	if err != nil || task == nil {
		t.Fatalf("expected a queued task, got task=%v err=%v", task, err)
	}
	if task.Type != domain.TaskTypeIndexDocument || task.DocumentID != docID {
		t.Errorf("unexpected task %s for document %s", task.Type, task.DocumentID)
	}

	// Record is registered with a ledger object
	resp, data := ts.do(t, "GET", "/api/v1/documents/"+docID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec domain.DocumentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if rec.State != domain.StateRegistered {
		t.Errorf("expected registered, got %s", rec.State)
	}
	if rec.LedgerObjectID == "" {
		t.Error("expected a ledger object ID")
	}
}

func TestUploadValidation(t *testing.T) {
	ts := newTestStack(t)
	token := ts.token(t, "0xalice")

	resp, _ := ts.do(t, "POST", "/api/v1/documents", token, uploadDocumentRequest{
		Filename: "empty.txt",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty content, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "POST", "/api/v1/documents", token, uploadDocumentRequest{
		Filename: "binary.exe",
		Content:  []byte("payload"),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported extension, got %d", resp.StatusCode)
	}
}

func TestRegistrationRejection(t *testing.T) {
	ts := newTestStack(t)
	token := ts.token(t, "0xalice")

	resp, data := ts.do(t, "POST", "/api/v1/documents", token, uploadDocumentRequest{
		Filename: "doc.txt",
		Content:  []byte("content"),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload returned %d", resp.StatusCode)
	}
	var uploaded uploadDocumentResponse
	if err := json.Unmarshal(data, &uploaded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	docID := uploaded.Document.DocumentID

	ts.ledger.RejectNext = true
	resp, _ = ts.do(t, "POST", "/api/v1/documents/"+docID+"/registration", token,
		completeRegistrationRequest{SignedTxRef: ts.ledger.SignedRef(uploaded.Registration)})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on ledger rejection, got %d", resp.StatusCode)
	}

	// A fresh transaction can be built and completed
	resp, data = ts.do(t, "POST", "/api/v1/documents/"+docID+"/registration/rebuild", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rebuild returned %d", resp.StatusCode)
	}
	var rebuilt struct {
		Registration *domain.UnsignedTransaction `json:"registration"`
	}
	if err := json.Unmarshal(data, &rebuilt); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	resp, _ = ts.do(t, "POST", "/api/v1/documents/"+docID+"/registration", token,
		completeRegistrationRequest{SignedTxRef: ts.ledger.SignedRef(rebuilt.Registration)})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected rebuilt registration to complete, got %d", resp.StatusCode)
	}
}

func TestGetDocumentAccessRules(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")
	bob := ts.token(t, "0xbob")

	privateID := ts.upload(t, alice, "private.txt", "private content", "private")
	publicID := ts.upload(t, alice, "public.txt", "public content", "public")

	resp, _ := ts.do(t, "GET", "/api/v1/documents/"+privateID, alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner should see private document, got %d", resp.StatusCode)
	}

	// Private looks absent to strangers
	resp, _ = ts.do(t, "GET", "/api/v1/documents/"+privateID, bob, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for stranger on private document, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/v1/documents/"+publicID, bob, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stranger should see public document, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/v1/documents/missing", alice, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing document, got %d", resp.StatusCode)
	}
}

func TestDownloadDocument(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")
	bob := ts.token(t, "0xbob")

	privateID := ts.upload(t, alice, "private.txt", "private content", "private")

	resp, data := ts.do(t, "GET", "/api/v1/documents/"+privateID+"/download", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner download status = %d", resp.StatusCode)
	}
	if string(data) != "private content" {
		t.Errorf("downloaded body = %q", data)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="private.txt"` {
		t.Errorf("Content-Disposition = %q", got)
	}

	// Private looks absent to strangers, same as the record itself
	resp, _ = ts.do(t, "GET", "/api/v1/documents/"+privateID+"/download", bob, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for stranger on private download, got %d", resp.StatusCode)
	}

	publicID := ts.upload(t, alice, "public.txt", "public content", "public")
	resp, data = ts.do(t, "GET", "/api/v1/documents/"+publicID+"/download", bob, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public download status = %d", resp.StatusCode)
	}
	if string(data) != "public content" {
		t.Errorf("downloaded body = %q", data)
	}
}

func TestListDocuments(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")
	bob := ts.token(t, "0xbob")

	ts.upload(t, alice, "one.txt", "first", "private")
	ts.upload(t, alice, "two.txt", "second", "private")

	resp, data := ts.do(t, "GET", "/api/v1/documents", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if listed.Count != 2 {
		t.Errorf("expected 2 documents, got %d", listed.Count)
	}

	resp, data = ts.do(t, "GET", "/api/v1/documents", bob, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if listed.Count != 0 {
		t.Errorf("expected bob to own no documents, got %d", listed.Count)
	}
}

func TestSetVisibilityOwnerGate(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")
	bob := ts.token(t, "0xbob")

	docID := ts.upload(t, alice, "doc.txt", "content here", "private")

	resp, _ := ts.do(t, "PUT", "/api/v1/documents/"+docID+"/visibility", bob,
		setVisibilityRequest{Visibility: "public"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner, got %d", resp.StatusCode)
	}

	resp, data := ts.do(t, "PUT", "/api/v1/documents/"+docID+"/visibility", alice,
		setVisibilityRequest{Visibility: "public"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d: %s", resp.StatusCode, data)
	}

	// Now visible to strangers
	resp, _ = ts.do(t, "GET", "/api/v1/documents/"+docID, bob, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected public document visible to stranger, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "PUT", "/api/v1/documents/"+docID+"/visibility", alice,
		setVisibilityRequest{Visibility: "internal"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown visibility, got %d", resp.StatusCode)
	}
}

func TestDeleteDocument(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")
	bob := ts.token(t, "0xbob")

	docID := ts.upload(t, alice, "doc.txt", "to be removed", "private")

	resp, _ := ts.do(t, "DELETE", "/api/v1/documents/"+docID, bob, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner delete, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "DELETE", "/api/v1/documents/"+docID, alice, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/v1/documents/"+docID, alice, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestLedgerHoldings(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")

	ts.upload(t, alice, "doc.txt", "ledger backed", "private")

	resp, data := ts.do(t, "GET", "/api/v1/holdings", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var holdings struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &holdings); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if holdings.Count != 1 {
		t.Errorf("expected 1 holding, got %d", holdings.Count)
	}
}

func TestVerifyOwnership(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")
	bob := ts.token(t, "0xbob")

	docID := ts.upload(t, alice, "doc.txt", "owned content", "private")

	resp, data := ts.do(t, "GET", "/api/v1/documents/"+docID+"/ownership", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var owned struct {
		Owned bool `json:"owned"`
	}
	if err := json.Unmarshal(data, &owned); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !owned.Owned {
		t.Error("expected alice to own the document")
	}

	resp, data = ts.do(t, "GET", "/api/v1/documents/"+docID+"/ownership", bob, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &owned); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if owned.Owned {
		t.Error("expected bob not to own the document")
	}
}

func TestQueryEndpoint(t *testing.T) {
	ts := newTestStack(t)
	alice := ts.token(t, "0xalice")

	// No indexed content yet: valid empty answer, not an error
	resp, data := ts.do(t, "POST", "/api/v1/query", alice, queryRequest{Question: "what rotates quarterly?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var answer domain.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if answer.Text != "" || len(answer.Sources) != 0 {
		t.Errorf("expected empty answer, got %q with %d sources", answer.Text, len(answer.Sources))
	}

	resp, _ = ts.do(t, "POST", "/api/v1/query", alice, queryRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty question, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestStack(t)

	resp, _ := ts.do(t, "GET", "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /ready, got %d", resp.StatusCode)
	}

	resp, data := ts.do(t, "GET", "/version", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /version, got %d", resp.StatusCode)
	}
	var version map[string]string
	if err := json.Unmarshal(data, &version); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if version["version"] != "dev" {
		t.Errorf("unexpected version: %s", version["version"])
	}
}
