package newproto

import "crypto/tls"

// ClientTLSConfig builds a TLS client configuration verifying the
// upstream's certificate against the system trust root set, with SNI set
// to serverName.
func ClientTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
}
