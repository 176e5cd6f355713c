package gfw

import (
	"crypto/tls"
	"crypto/x509"
)

// allowedCipherSuites is the TLS 1.2 allow-list: forward-secret AEAD suites
// only. TLS 1.3 suites are fixed by the runtime and all qualify.
var allowedCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// TLSConfig is the transport security policy shared by both API families.
// roots may be nil to use the system pool.
func TLSConfig(roots *x509.CertPool) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		CipherSuites: allowedCipherSuites,
		RootCAs:      roots,
	}
}
