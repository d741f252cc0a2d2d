package core

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"apiwatch/logger"
	"apiwatch/models"

	"github.com/elazarl/goproxy"
	"github.com/google/uuid"
)

var (
	caCert *x509.Certificate
	caKey  *rsa.PrivateKey
)

// proxyRequestContextData is passed between the request and response handlers
// via ctx.UserData. A nil value marks the request as out of capture scope.
type proxyRequestContextData struct {
	Record    *models.CapturedRequest
	StartedAt time.Time
}

func setGoproxyCA(loadedGoproxyCa *tls.Certificate) {
	if loadedGoproxyCa == nil {
		logger.Fatal("setGoproxyCA called with nil certificate")
	}
	goproxy.GoproxyCa = *loadedGoproxyCa
	logger.CaptureInfo("goproxy CA configured.")
}

// GenerateAndSaveCA creates a fresh MITM CA and writes the certificate and
// key as PEM files. Run once before the first proxy start.
func GenerateAndSaveCA(certPath, keyPath string) error {
	localCaCert, localCaKey, err := generateCA("apiwatch Capture Proxy CA")
	if err != nil {
		logger.Error("Failed to generate CA: %v", err)
		return fmt.Errorf("failed to generate CA: %w", err)
	}

	certOut, err := os.Create(certPath)
	if err != nil {
		logger.Error("Failed to open %s for writing: %v", certPath, err)
		return fmt.Errorf("failed to open %s for writing: %w", certPath, err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: localCaCert.Raw}); err != nil {
		logger.Error("Failed to write CA certificate to %s: %v", certPath, err)
		return fmt.Errorf("failed to write CA certificate to %s: %w", certPath, err)
	}
	fmt.Printf("CA certificate saved to %s\n", certPath)

	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		logger.Error("Failed to open %s for writing: %v", keyPath, err)
		return fmt.Errorf("failed to open %s for writing: %w", keyPath, err)
	}
	defer keyOut.Close()

	privBytes, err := x509.MarshalPKCS8PrivateKey(localCaKey)
	if err != nil {
		logger.CaptureInfo("Warning: could not marshal private key to PKCS8: %v. Trying PKCS1.", err)
		privBytes = x509.MarshalPKCS1PrivateKey(localCaKey)
		if err := pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes}); err != nil {
			logger.Error("Failed to write CA RSA private key to %s: %v", keyPath, err)
			return fmt.Errorf("failed to write CA RSA private key to %s: %w", keyPath, err)
		}
	} else {
		if err := pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}); err != nil {
			logger.Error("Failed to write CA private key to %s: %v", keyPath, err)
			return fmt.Errorf("failed to write CA private key to %s: %w", keyPath, err)
		}
	}
	fmt.Printf("CA private key saved to %s\n", keyPath)
	return nil
}

func loadCA(certPath, keyPath string) error {
	certPEMBlock, err := os.ReadFile(certPath)
	if err != nil {
		logger.Error("Failed to read CA certificate file %s: %v", certPath, err)
		return fmt.Errorf("failed to read CA certificate file %s: %w", certPath, err)
	}
	certDERBlock, _ := pem.Decode(certPEMBlock)
	if certDERBlock == nil || certDERBlock.Type != "CERTIFICATE" {
		logger.Error("Failed to decode CA certificate PEM block from %s", certPath)
		return fmt.Errorf("failed to decode CA certificate PEM block from %s", certPath)
	}
	loadedCaCert, err := x509.ParseCertificate(certDERBlock.Bytes)
	if err != nil {
		logger.Error("Failed to parse CA certificate from %s: %v", certPath, err)
		return fmt.Errorf("failed to parse CA certificate from %s: %w", certPath, err)
	}
	caCert = loadedCaCert

	keyPEMBlock, err := os.ReadFile(keyPath)
	if err != nil {
		logger.Error("Failed to read CA key file %s: %v", keyPath, err)
		return fmt.Errorf("failed to read CA key file %s: %w", keyPath, err)
	}
	keyDERBlock, _ := pem.Decode(keyPEMBlock)
	if keyDERBlock == nil {
		logger.Error("Failed to decode CA key PEM block from %s (key block is nil)", keyPath)
		return fmt.Errorf("failed to decode CA key PEM block from %s (key block is nil)", keyPath)
	}

	var parsedKey interface{}
	if keyDERBlock.Type == "PRIVATE KEY" {
		parsedKey, err = x509.ParsePKCS8PrivateKey(keyDERBlock.Bytes)
	} else if keyDERBlock.Type == "RSA PRIVATE KEY" {
		parsedKey, err = x509.ParsePKCS1PrivateKey(keyDERBlock.Bytes)
	} else {
		logger.Error("Unknown CA key PEM block type '%s' from %s", keyDERBlock.Type, keyPath)
		return fmt.Errorf("unknown CA key PEM block type '%s' from %s", keyDERBlock.Type, keyPath)
	}

	if err != nil {
		logger.Error("Failed to parse CA private key from %s (type %s): %v", keyPath, keyDERBlock.Type, err)
		return fmt.Errorf("failed to parse CA private key from %s (type %s): %w", keyPath, keyDERBlock.Type, err)
	}

	loadedCaKey, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		logger.Error("CA key from %s is not an RSA private key after parsing type %s", keyPath, keyDERBlock.Type)
		return fmt.Errorf("CA key from %s is not an RSA private key after parsing type %s", keyPath, keyDERBlock.Type)
	}
	caKey = loadedCaKey

	logger.CaptureInfo("CA certificate and key loaded successfully.")
	return nil
}

func generateCA(commonName string) (*x509.Certificate, *rsa.PrivateKey, error) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"apiwatch Development CA"},
			CommonName:   commonName,
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse generated CA certificate: %w", err)
	}
	return cert, privKey, nil
}

// StartCaptureProxy runs the MITM capture proxy on the given port. Requests
// matching the session's monitored prefixes are recorded with their full
// response bodies and fed into the session; everything else passes through
// untouched. Blocks until the listener fails.
func StartCaptureProxy(port string, session *Session, caCertPath, caKeyPath string) error {
	if err := loadCA(caCertPath, caKeyPath); err != nil {
		return fmt.Errorf("could not load CA certificate/key: %w. Run 'proxy init-ca' or check config", err)
	}

	setGoproxyCA(&tls.Certificate{
		Certificate: [][]byte{caCert.Raw},
		PrivateKey:  caKey,
		Leaf:        caCert,
	})

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = log.New(io.Discard, "", 0)

	proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		logger.CaptureDebug("HandleConnect for session %d, host %s", ctx.Session, host)
		return &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(&goproxy.GoproxyCa)}, host
	}))

	proxy.OnRequest().DoFunc(
		func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			startTime := time.Now()

			cfg := session.Config()
			requestURL := r.URL.String()
			if !MatchesAnyAPIPrefix(requestURL, cfg.APIPrefixes) {
				logger.CaptureDebug("REQ: %s %s - not a monitored prefix, passing through.", r.Method, requestURL)
				return r, nil
			}

			reqBodyBytes, errReadReq := io.ReadAll(r.Body)
			if errReadReq != nil {
				logger.CaptureError("REQ: Error reading request body for %s %s: %v", r.Method, requestURL, errReadReq)
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))

			reqHeaders := make(map[string]string, len(r.Header))
			for name, values := range r.Header {
				if len(values) > 0 {
					reqHeaders[name] = values[0]
				}
			}

			ctx.UserData = &proxyRequestContextData{
				Record: &models.CapturedRequest{
					ID:             uuid.NewString(),
					URL:            requestURL,
					Method:         r.Method,
					RequestHeaders: reqHeaders,
					RequestBody:    string(reqBodyBytes),
					Timestamp:      startTime.UnixMilli(),
					Domain:         ExtractDomain(requestURL),
				},
				StartedAt: startTime,
			}

			logger.CaptureInfo("REQ: %s %s", r.Method, requestURL)
			return r, nil
		})

	proxy.OnResponse().DoFunc(
		func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
			pCtxData, ok := ctx.UserData.(*proxyRequestContextData)
			if !ok || pCtxData == nil || pCtxData.Record == nil {
				return resp
			}
			rec := pCtxData.Record

			if resp == nil {
				logger.CaptureError("RESP: Nil response for %s %s", rec.Method, rec.URL)
				rec.Status = 0
				rec.StatusText = "No Response"
				rec.ResponseBody = models.SentinelNetworkError
				rec.Duration = time.Since(pCtxData.StartedAt).Milliseconds()
				session.RecordFromSourceB(*rec)
				return resp
			}

			respBodyBytes, errReadResp := io.ReadAll(resp.Body)
			if errReadResp != nil {
				logger.CaptureError("RESP: Error reading response body for %s %s: %v", rec.Method, rec.URL, errReadResp)
			}
			resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewBuffer(respBodyBytes))

			respHeaders := make(map[string]string, len(resp.Header))
			for name, values := range resp.Header {
				if len(values) > 0 {
					respHeaders[name] = values[0]
				}
			}

			bodyText := decodeCapturedBody(respBodyBytes, resp.Header.Get("Content-Encoding"))

			rec.Status = resp.StatusCode
			rec.StatusText = statusPhrase(resp)
			rec.ResponseHeaders = respHeaders
			rec.ResponseBody = bodyText
			rec.Duration = time.Since(pCtxData.StartedAt).Milliseconds()

			session.RecordFromSourceB(*rec)

			logger.CaptureInfo("RESP: %d for %s %s (Size: %d, Duration: %dms)", resp.StatusCode, rec.Method, rec.URL, len(respBodyBytes), rec.Duration)
			return resp
		})

	logger.CaptureInfo("Capture proxy server starting on :%s", port)
	return http.ListenAndServe(":"+port, proxy)
}

// decodeCapturedBody decompresses a captured response body copy for storage.
// The original compressed stream is what travels onward to the client.
func decodeCapturedBody(raw []byte, contentEncoding string) string {
	if len(raw) == 0 {
		return ""
	}
	text, err := readDecodedBody(bytes.NewReader(raw), contentEncoding)
	if err != nil {
		logger.CaptureError("Failed to decode %s response body: %v", contentEncoding, err)
		return models.SentinelBodyReadFailed
	}
	return text
}

func statusPhrase(resp *http.Response) string {
	phrase := strings.TrimPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode))
	if phrase == "" || phrase == resp.Status {
		phrase = statusText(resp.StatusCode)
	}
	return phrase
}
