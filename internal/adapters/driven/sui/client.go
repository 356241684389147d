package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.LedgerClient = (*Client)(nil)

const (
	defaultTimeout   = 30 * time.Second
	defaultGasBudget = "10000000"

	registerFunction   = "register_document"
	visibilityFunction = "set_visibility"
	transferFunction   = "transfer_document"

	// Sui's shared clock object, passed to entry functions that record
	// timestamps
	clockObjectID = "0x6"
)

// SignerFunc signs transaction bytes out of process. The client never
// holds key material; mutations that the service itself drives (such as
// visibility retags) delegate to this callback, typically backed by a
// remote signer.
type SignerFunc func(ctx context.Context, txBytes string) (signature string, err error)

// Client implements LedgerClient against a Sui JSON-RPC endpoint.
// Registration follows the two-phase flow: BuildRegisterTx returns
// unsigned transaction bytes for the document owner's wallet, and
// SubmitSigned executes the externally signed result.
type Client struct {
	rpcURL     string
	packageID  string
	moduleName string
	gasBudget  string
	signer     SignerFunc
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientConfig holds Sui endpoint and contract configuration.
type ClientConfig struct {
	// RPCURL is the Sui JSON-RPC endpoint.
	RPCURL string
	// PackageID is the published document registry package.
	PackageID string
	// ModuleName is the registry module within the package.
	ModuleName string
	// GasBudget for built transactions, in MIST.
	GasBudget string
	// Signer handles service-driven mutations. Optional; without it
	// UpdateVisibility and Transfer are unavailable.
	Signer  SignerFunc
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient creates a new Sui ledger client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}
	if cfg.PackageID == "" {
		return nil, fmt.Errorf("package ID is required")
	}
	if cfg.ModuleName == "" {
		cfg.ModuleName = "docvault"
	}
	if cfg.GasBudget == "" {
		cfg.GasBudget = defaultGasBudget
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		packageID:  cfg.PackageID,
		moduleName: cfg.ModuleName,
		gasBudget:  cfg.GasBudget,
		signer:     cfg.Signer,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", domain.ErrLedgerResponse, method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s (code %d)", domain.ErrLedgerRejected, method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

// BuildRegisterTx builds unsigned transaction bytes for the owner's
// wallet to sign.
func (c *Client) BuildRegisterTx(ctx context.Context, owner, name, blobID string, isPublic bool) (*domain.UnsignedTransaction, error) {
	target := fmt.Sprintf("%s::%s::%s", c.packageID, c.moduleName, registerFunction)

	result, err := c.call(ctx, "unsafe_moveCall",
		owner,
		c.packageID,
		c.moduleName,
		registerFunction,
		[]string{},
		[]interface{}{name, blobID, isPublic, clockObjectID},
		nil,
		c.gasBudget,
	)
	if err != nil {
		return nil, err
	}

	var built struct {
		TxBytes string `json:"txBytes"`
	}
	if err := json.Unmarshal(result, &built); err != nil || built.TxBytes == "" {
		return nil, fmt.Errorf("%w: move call returned no transaction bytes", domain.ErrLedgerResponse)
	}

	return &domain.UnsignedTransaction{
		Target:   target,
		TxBytes:  built.TxBytes,
		Name:     name,
		BlobID:   blobID,
		IsPublic: isPublic,
		BuiltAt:  time.Now(),
	}, nil
}

// signedRef is the serialized form of an externally signed transaction:
// the original bytes plus the wallet signature.
type signedRef struct {
	TxBytes   string `json:"tx_bytes"`
	Signature string `json:"signature"`
}

type executeResult struct {
	Digest  string `json:"digest"`
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
		Created []struct {
			Reference struct {
				ObjectID string `json:"objectId"`
			} `json:"reference"`
		} `json:"created"`
	} `json:"effects"`
}

// SubmitSigned executes an externally signed transaction and returns
// the validated on-ledger record it created.
func (c *Client) SubmitSigned(ctx context.Context, signedTxRef string) (*domain.LedgerRecord, error) {
	var ref signedRef
	if err := json.Unmarshal([]byte(signedTxRef), &ref); err != nil || ref.TxBytes == "" || ref.Signature == "" {
		return nil, fmt.Errorf("%w: malformed signed transaction reference", domain.ErrLedgerRejected)
	}

	record, err := c.execute(ctx, ref.TxBytes, ref.Signature)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: transaction created no ledger object", domain.ErrLedgerResponse)
	}
	return record, nil
}

func (c *Client) execute(ctx context.Context, txBytes, signature string) (*domain.LedgerRecord, error) {
	result, err := c.call(ctx, "sui_executeTransactionBlock",
		txBytes,
		[]string{signature},
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution",
	)
	if err != nil {
		return nil, err
	}

	var executed executeResult
	if err := json.Unmarshal(result, &executed); err != nil {
		return nil, fmt.Errorf("%w: decode execution result: %v", domain.ErrLedgerResponse, err)
	}
	if executed.Effects.Status.Status != "success" {
		return nil, fmt.Errorf("%w: transaction failed: %s", domain.ErrLedgerRejected, executed.Effects.Status.Error)
	}
	if len(executed.Effects.Created) == 0 {
		// Mutations of existing objects create nothing; that is fine for
		// visibility and transfer calls
		return nil, nil
	}

	objectID := executed.Effects.Created[0].Reference.ObjectID
	c.logger.Info("ledger transaction executed", "digest", executed.Digest, "object_id", objectID)
	return c.GetRecord(ctx, objectID)
}

// objectFields is the fixed field set the registry contract stores per
// document. Unknown shapes fail validation instead of passing through.
type objectFields struct {
	Name         string `json:"name"`
	Owner        string `json:"owner"`
	WalrusBlobID string `json:"walrus_blob_id"`
	UploadedAt   string `json:"uploaded_at"`
	IsPublic     bool   `json:"is_public"`
}

type objectData struct {
	Data *struct {
		ObjectID string `json:"objectId"`
		Content  *struct {
			Fields objectFields `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// GetRecord fetches one ownership record by object ID.
func (c *Client) GetRecord(ctx context.Context, objectID string) (*domain.LedgerRecord, error) {
	result, err := c.call(ctx, "sui_getObject",
		objectID,
		map[string]bool{"showContent": true},
	)
	if err != nil {
		return nil, err
	}

	var obj objectData
	if err := json.Unmarshal(result, &obj); err != nil {
		return nil, fmt.Errorf("%w: decode object response: %v", domain.ErrLedgerResponse, err)
	}
	if obj.Error != nil || obj.Data == nil {
		return nil, domain.ErrNotFound
	}
	if obj.Data.Content == nil {
		return nil, fmt.Errorf("%w: object %s has no content", domain.ErrLedgerResponse, objectID)
	}

	return recordFromFields(obj.Data.ObjectID, obj.Data.Content.Fields)
}

func recordFromFields(objectID string, fields objectFields) (*domain.LedgerRecord, error) {
	uploadedAt, err := strconv.ParseInt(fields.UploadedAt, 10, 64)
	if err != nil && fields.UploadedAt != "" {
		return nil, fmt.Errorf("%w: malformed uploaded_at %q", domain.ErrLedgerResponse, fields.UploadedAt)
	}

	record := &domain.LedgerRecord{
		ObjectID:   objectID,
		Name:       fields.Name,
		Owner:      fields.Owner,
		ContentID:  fields.WalrusBlobID,
		UploadedAt: uploadedAt,
		IsPublic:   fields.IsPublic,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

type ownedObjectsResult struct {
	Data []objectData `json:"data"`
}

// QueryOwned lists ownership records held by an identity.
func (c *Client) QueryOwned(ctx context.Context, owner string) ([]*domain.LedgerRecord, error) {
	structType := fmt.Sprintf("%s::%s::DocumentAsset", c.packageID, c.moduleName)

	result, err := c.call(ctx, "suix_getOwnedObjects",
		owner,
		map[string]interface{}{
			"filter":  map[string]string{"StructType": structType},
			"options": map[string]bool{"showContent": true},
		},
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	var owned ownedObjectsResult
	if err := json.Unmarshal(result, &owned); err != nil {
		return nil, fmt.Errorf("%w: decode owned objects: %v", domain.ErrLedgerResponse, err)
	}

	records := make([]*domain.LedgerRecord, 0, len(owned.Data))
	for _, obj := range owned.Data {
		if obj.Data == nil || obj.Data.Content == nil {
			continue
		}
		record, err := recordFromFields(obj.Data.ObjectID, obj.Data.Content.Fields)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// UpdateVisibility flips the record's is_public flag through the
// configured signer. The on-chain owner check is authoritative; the
// local check just fails fast.
func (c *Client) UpdateVisibility(ctx context.Context, objectID, owner string, isPublic bool) error {
	record, err := c.GetRecord(ctx, objectID)
	if err != nil {
		return err
	}
	if record.Owner != owner {
		return fmt.Errorf("%w: %s does not own %s", domain.ErrAccessDenied, owner, objectID)
	}

	return c.signedCall(ctx, owner, visibilityFunction, []interface{}{objectID, isPublic})
}

// Transfer moves ownership of a record to a new identity.
func (c *Client) Transfer(ctx context.Context, objectID, owner, newOwner string) error {
	record, err := c.GetRecord(ctx, objectID)
	if err != nil {
		return err
	}
	if record.Owner != owner {
		return fmt.Errorf("%w: %s does not own %s", domain.ErrAccessDenied, owner, objectID)
	}

	return c.signedCall(ctx, owner, transferFunction, []interface{}{objectID, newOwner})
}

func (c *Client) signedCall(ctx context.Context, signer, function string, args []interface{}) error {
	if c.signer == nil {
		return fmt.Errorf("no transaction signer configured for %s", function)
	}

	result, err := c.call(ctx, "unsafe_moveCall",
		signer,
		c.packageID,
		c.moduleName,
		function,
		[]string{},
		args,
		nil,
		c.gasBudget,
	)
	if err != nil {
		return err
	}

	var built struct {
		TxBytes string `json:"txBytes"`
	}
	if err := json.Unmarshal(result, &built); err != nil || built.TxBytes == "" {
		return fmt.Errorf("%w: move call returned no transaction bytes", domain.ErrLedgerResponse)
	}

	signature, err := c.signer(ctx, built.TxBytes)
	if err != nil {
		return fmt.Errorf("sign %s transaction: %w", function, err)
	}

	_, err = c.execute(ctx, built.TxBytes, signature)
	return err
}
