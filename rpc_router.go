package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/scrogson/walle/pkg/key"
	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/rpc"
	"github.com/scrogson/walle/pkg/store"
	"github.com/scrogson/walle/pkg/wallet"
)

// RPCRouter binds the wallet methods to an rpc.Node.
type RPCRouter struct {
	Node    rpc.Node
	Config  *Config
	Store   *store.KeystoreStore
	Metrics *Metrics

	kdf      *semaphore.Weighted
	validate *validator.Validate
	tracer   trace.Tracer
	lg       log.Logger
}

func NewRPCRouter(node rpc.Node, conf *Config, wallets *store.KeystoreStore, metrics *Metrics, logger log.Logger) *RPCRouter {
	r := &RPCRouter{
		Node:     node,
		Config:   conf,
		Store:    wallets,
		Metrics:  metrics,
		kdf:      semaphore.NewWeighted(conf.KDFConcurrency),
		validate: validator.New(),
		tracer:   otel.Tracer("github.com/scrogson/walle"),
		lg:       logger.WithName("rpc-router"),
	}

	r.Node.Use(r.LoggerMiddleware)
	r.Node.Use(r.MetricsMiddleware)

	r.Node.Handle(rpc.ListWalletsMethod.String(), r.HandleListWallets)
	r.Node.Handle(rpc.GetKeystoreMethod.String(), r.HandleGetKeystore)
	r.Node.Handle(rpc.DeleteWalletMethod.String(), r.HandleDeleteWallet)
	r.Node.Handle(rpc.RecoverMethod.String(), r.HandleRecover)
	r.Node.Handle(rpc.RecoverTypedDataMethod.String(), r.HandleRecoverTypedData)
	r.Node.Handle(rpc.VerifyMethod.String(), r.HandleVerify)

	// Methods that run scrypt or pbkdf2 share a bounded pool.
	kdfGroup := r.Node.NewGroup("kdf")
	kdfGroup.Use(r.KDFMiddleware)
	kdfGroup.Handle(rpc.CreateWalletMethod.String(), r.HandleCreateWallet)
	kdfGroup.Handle(rpc.ImportPrivateKeyMethod.String(), r.HandleImportPrivateKey)
	kdfGroup.Handle(rpc.ImportMnemonicMethod.String(), r.HandleImportMnemonic)
	kdfGroup.Handle(rpc.ImportKeystoreMethod.String(), r.HandleImportKeystore)
	kdfGroup.Handle(rpc.SignMessageMethod.String(), r.HandleSignMessage)
	kdfGroup.Handle(rpc.SignTypedDataMethod.String(), r.HandleSignTypedData)

	exportGroup := r.Node.NewGroup("export")
	exportGroup.Use(r.KeyExportMiddleware)
	exportGroup.Use(r.KDFMiddleware)
	exportGroup.Handle(rpc.ExportPrivateKeyMethod.String(), r.HandleExportPrivateKey)

	return r
}

// LoggerMiddleware opens a span per request and puts a request-scoped logger in the context.
func (r *RPCRouter) LoggerMiddleware(c *rpc.Context) {
	req := c.Request.Req
	ctx, span := r.tracer.Start(c.Context, req.Method, trace.WithAttributes(
		attribute.Int64("rpc.request_id", int64(req.RequestID)),
		attribute.String("rpc.connection_id", c.ConnectionID),
	))
	defer span.End()

	logger := r.lg.WithKV("requestID", req.RequestID).WithKV("method", req.Method)
	c.Context = log.SetContextLogger(ctx, logger)
	logger = log.FromContext(c.Context)

	c.Next()

	if err := c.Response.Error(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("failed to handle RPC request", "error", err)
		return
	}
	logger.Debug("handled RPC request")
}

func (r *RPCRouter) MetricsMiddleware(c *rpc.Context) {
	r.Metrics.MessageReceived.Inc()

	method := c.Request.Req.Method
	start := time.Now()
	c.Next()
	r.Metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	status := "success"
	if c.Response.Res.Method == rpc.ErrorMethod.String() {
		status = "failure"
	}
	r.Metrics.RPCRequests.WithLabelValues(method, status).Inc()
}

// KDFMiddleware holds one semaphore slot for the rest of the chain.
func (r *RPCRouter) KDFMiddleware(c *rpc.Context) {
	ctx, cancel := context.WithTimeout(c.Context, r.Config.KDFQueueTimeout)
	defer cancel()

	start := time.Now()
	if err := r.kdf.Acquire(ctx, 1); err != nil {
		r.Metrics.KDFRejected.Inc()
		c.Fail(rpc.Errorf("node is busy, try again later"), "")
		return
	}
	r.Metrics.KDFWait.Observe(time.Since(start).Seconds())
	r.Metrics.KDFInFlight.Inc()
	defer func() {
		r.Metrics.KDFInFlight.Dec()
		r.kdf.Release(1)
	}()

	start = time.Now()
	c.Next()
	r.Metrics.KDFDuration.Observe(time.Since(start).Seconds())
}

func (r *RPCRouter) KeyExportMiddleware(c *rpc.Context) {
	if !r.Config.AllowKeyExport {
		c.Fail(rpc.Errorf("private key export is disabled"), "")
		return
	}
	c.Next()
}

func (r *RPCRouter) HandleCreateWallet(c *rpc.Context) {
	var params rpc.CreateWalletRequest
	if !r.parseParams(c, &params) {
		return
	}

	k, err := wallet.GenerateWallet(rand.Reader)
	if err != nil {
		c.Fail(err, "failed to generate key")
		return
	}
	defer k.Zero()

	r.storeKey(c, params.Name, k, params.Password)
}

func (r *RPCRouter) HandleImportPrivateKey(c *rpc.Context) {
	var params rpc.ImportPrivateKeyRequest
	if !r.parseParams(c, &params) {
		return
	}

	k, err := wallet.ImportPrivateKey(params.PrivateKey)
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	defer k.Zero()

	r.storeKey(c, params.Name, k, params.Password)
}

func (r *RPCRouter) HandleImportMnemonic(c *rpc.Context) {
	var params rpc.ImportMnemonicRequest
	if !r.parseParams(c, &params) {
		return
	}

	k, err := wallet.ImportMnemonicWithPassphrase(params.Mnemonic, params.Path, params.Passphrase)
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	defer k.Zero()

	r.storeKey(c, params.Name, k, params.Password)
}

// HandleImportKeystore stores the document as given once it decrypts with password.
func (r *RPCRouter) HandleImportKeystore(c *rpc.Context) {
	var params rpc.ImportKeystoreRequest
	if !r.parseParams(c, &params) {
		return
	}

	ks, err := keystore.Parse(params.Keystore)
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	k, err := keystore.DecryptKeystore(ks, params.Password)
	if err != nil {
		r.keystoreFailure(c, err)
		return
	}
	defer k.Zero()

	ks.Address = common.Bytes2Hex(k.Address().Bytes())
	r.saveKeystore(c, params.Name, ks)
}

func (r *RPCRouter) HandleListWallets(c *rpc.Context) {
	wallets, err := r.Store.List()
	if err != nil {
		c.Fail(err, "failed to list wallets")
		return
	}

	resp := rpc.ListWalletsResponse{Wallets: make([]rpc.WalletInfo, 0, len(wallets))}
	for _, w := range wallets {
		resp.Wallets = append(resp.Wallets, walletInfo(&w))
	}
	r.succeed(c, resp)
}

func (r *RPCRouter) HandleGetKeystore(c *rpc.Context) {
	var params rpc.GetKeystoreRequest
	if !r.parseParams(c, &params) {
		return
	}

	w, err := r.Store.GetByAddress(params.Address)
	if err != nil {
		c.Fail(storeError(err), "failed to load wallet")
		return
	}
	r.succeed(c, rpc.GetKeystoreResponse{Address: w.Address, Keystore: json.RawMessage(w.KeystoreJSON)})
}

func (r *RPCRouter) HandleExportPrivateKey(c *rpc.Context) {
	var params rpc.ExportPrivateKeyRequest
	if !r.parseParams(c, &params) {
		return
	}

	k, ok := r.unlock(c, params.Address, params.Password)
	if !ok {
		return
	}
	defer k.Zero()

	log.FromContext(c.Context).Warn("private key exported", "address", k.Checksum())
	r.succeed(c, rpc.ExportPrivateKeyResponse{Address: k.Checksum(), PrivateKey: wallet.ExportPrivateKey(k)})
}

func (r *RPCRouter) HandleDeleteWallet(c *rpc.Context) {
	var params rpc.DeleteWalletRequest
	if !r.parseParams(c, &params) {
		return
	}

	if err := r.Store.Delete(params.Address); err != nil {
		c.Fail(storeError(err), "failed to delete wallet")
		return
	}
	log.FromContext(c.Context).Info("wallet deleted", "address", params.Address)
	r.succeed(c, rpc.DeleteWalletResponse{Address: common.HexToAddress(params.Address).Hex()})
}

func (r *RPCRouter) HandleSignMessage(c *rpc.Context) {
	var params rpc.SignMessageRequest
	if !r.parseParams(c, &params) {
		return
	}

	message, err := decodeMessage(params.Message, params.Encoding)
	if err != nil {
		c.Fail(err, "")
		return
	}

	k, ok := r.unlock(c, params.Address, params.Password)
	if !ok {
		return
	}
	defer k.Zero()

	sig, err := wallet.SignMessage(k, message)
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	r.Metrics.Signatures.WithLabelValues("message").Inc()
	r.succeed(c, rpc.SignatureResponse{Address: k.Checksum(), Signature: sig})
}

func (r *RPCRouter) HandleSignTypedData(c *rpc.Context) {
	var params rpc.SignTypedDataRequest
	if !r.parseParams(c, &params) {
		return
	}

	k, ok := r.unlock(c, params.Address, params.Password)
	if !ok {
		return
	}
	defer k.Zero()

	sig, err := wallet.SignTypedData(k, params.TypedData)
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	r.Metrics.Signatures.WithLabelValues("typed_data").Inc()
	r.succeed(c, rpc.SignatureResponse{Address: k.Checksum(), Signature: sig})
}

func (r *RPCRouter) HandleRecover(c *rpc.Context) {
	var params rpc.RecoverRequest
	if !r.parseParams(c, &params) {
		return
	}

	message, err := decodeMessage(params.Message, params.Encoding)
	if err != nil {
		c.Fail(err, "")
		return
	}

	addr, err := wallet.Recover(message, params.Signature)
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	r.succeed(c, rpc.RecoverResponse{Address: addr})
}

func (r *RPCRouter) HandleRecoverTypedData(c *rpc.Context) {
	var params rpc.RecoverTypedDataRequest
	if !r.parseParams(c, &params) {
		return
	}

	addr, err := wallet.RecoverTypedData(params.TypedData, params.Signature)
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	r.succeed(c, rpc.RecoverResponse{Address: addr})
}

// HandleVerify checks a signature against either a message or a typed data document.
func (r *RPCRouter) HandleVerify(c *rpc.Context) {
	var params rpc.VerifyRequest
	if !r.parseParams(c, &params) {
		return
	}

	hasTypedData := len(params.TypedData) > 0 && string(params.TypedData) != "null"
	if (params.Message == nil) == !hasTypedData {
		c.Fail(rpc.Errorf("exactly one of message and typed_data is required"), "")
		return
	}

	var (
		valid bool
		err   error
	)
	if hasTypedData {
		valid, err = wallet.VerifyTypedData(params.TypedData, params.Signature, params.Address)
	} else {
		var message []byte
		message, err = decodeMessage(*params.Message, params.Encoding)
		if err != nil {
			c.Fail(err, "")
			return
		}
		valid, err = wallet.Verify(message, params.Signature, params.Address)
	}
	if err != nil {
		c.Fail(walletError(err), "")
		return
	}
	r.succeed(c, rpc.VerifyResponse{Valid: valid})
}

// storeKey encrypts k and saves it under name.
func (r *RPCRouter) storeKey(c *rpc.Context, name string, k *key.PrivateKey, password string) {
	ks, err := keystore.Encrypt(k, password, r.Config.KeystoreParams())
	if err != nil {
		c.Fail(err, "failed to encrypt key")
		return
	}
	r.saveKeystore(c, name, ks)
}

func (r *RPCRouter) saveKeystore(c *rpc.Context, name string, ks *keystore.Keystore) {
	w, err := r.Store.Save(name, ks)
	if err != nil {
		c.Fail(storeError(err), "failed to store wallet")
		return
	}
	log.FromContext(c.Context).Info("wallet stored", "name", w.Name, "address", w.Address)
	r.succeed(c, rpc.WalletResponse{WalletInfo: walletInfo(w)})
}

// unlock decrypts the stored keystore for address. On failure the response is
// already set.
func (r *RPCRouter) unlock(c *rpc.Context, address, password string) (*key.PrivateKey, bool) {
	w, err := r.Store.GetByAddress(address)
	if err != nil {
		c.Fail(storeError(err), "failed to load wallet")
		return nil, false
	}
	ks, err := w.Keystore()
	if err != nil {
		c.Fail(walletError(err), "")
		return nil, false
	}
	k, err := keystore.DecryptKeystore(ks, password)
	if err != nil {
		r.keystoreFailure(c, err)
		return nil, false
	}
	return k, true
}

func (r *RPCRouter) keystoreFailure(c *rpc.Context, err error) {
	r.Metrics.KeystoreFailures.WithLabelValues(wallet.KindOf(err).String()).Inc()
	c.Fail(walletError(err), "")
}

// parseParams decodes and validates the request params. On failure the response
// is already set.
func (r *RPCRouter) parseParams(c *rpc.Context, v any) bool {
	if err := c.Request.Req.Params.Translate(v); err != nil {
		c.Fail(rpc.Errorf("invalid parameters: %v", err), "")
		return false
	}
	if err := r.validate.Struct(v); err != nil {
		c.Fail(rpc.Errorf("invalid parameters: %v", err), "")
		return false
	}
	return true
}

func (r *RPCRouter) succeed(c *rpc.Context, result any) {
	params, err := rpc.NewParams(result)
	if err != nil {
		c.Fail(err, "failed to encode response")
		return
	}
	c.Succeed(c.Request.Req.Method, params)
}

func walletInfo(w *store.Wallet) rpc.WalletInfo {
	return rpc.WalletInfo{Name: w.Name, Address: w.Address, CreatedAt: w.CreatedAt.Unix()}
}

// walletError reports err as "<Kind>: <message>". Unclassified errors stay hidden.
func walletError(err error) error {
	kind := wallet.KindOf(err)
	if kind == wallet.KindUnknown {
		return err
	}
	return rpc.Errorf("%s: %s", kind, err.Error())
}

func storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyExists) {
		return rpc.Errorf("%s", err.Error())
	}
	return err
}

// decodeMessage turns the wire form of a message into bytes. The default
// encoding is UTF-8; "hex" takes 0x-prefixed or bare hex.
func decodeMessage(message, encoding string) ([]byte, error) {
	switch encoding {
	case "", rpc.EncodingUTF8:
		return []byte(message), nil
	case rpc.EncodingHex:
		if !strings.HasPrefix(message, "0x") && !strings.HasPrefix(message, "0X") {
			message = "0x" + message
		}
		b, err := hexutil.Decode(message)
		if err != nil {
			return nil, rpc.Errorf("invalid hex message: %v", err)
		}
		return b, nil
	default:
		return nil, rpc.Errorf("unsupported message encoding: %q", encoding)
	}
}
