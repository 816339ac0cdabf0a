package sshalgo

// Built-in algorithm names per spec §4.3. These are the RFC4253-family
// minimum sets; registries in package kex and package sshcipher use these
// as their builtins map keys.
const (
	KexDHGroup1SHA1        = "diffie-hellman-group1-sha1"
	KexDHGroup14SHA1       = "diffie-hellman-group14-sha1"
	KexDHGroupExchangeSHA256 = "diffie-hellman-group-exchange-sha256"
	KexECDHNistP256        = "ecdh-sha2-nistp256"
	KexECDHNistP384        = "ecdh-sha2-nistp384"
	KexECDHNistP521        = "ecdh-sha2-nistp521"

	HostKeyRSA        = "ssh-rsa"
	HostKeyDSS        = "ssh-dss"
	HostKeyECDSAP256  = "ecdsa-sha2-nistp256"
	HostKeyECDSAP384  = "ecdsa-sha2-nistp384"
	HostKeyECDSAP521  = "ecdsa-sha2-nistp521"
	HostKeyED25519    = "ssh-ed25519"

	CipherAES128CTR = "aes128-ctr"
	CipherAES192CTR = "aes192-ctr"
	CipherAES256CTR = "aes256-ctr"
	CipherAES128CBC = "aes128-cbc"
	CipherAES192CBC = "aes192-cbc"
	CipherAES256CBC = "aes256-cbc"

	MacHMACSHA1    = "hmac-sha1"
	MacHMACSHA196  = "hmac-sha1-96"
	MacHMACSHA256  = "hmac-sha2-256"
	MacHMACSHA512  = "hmac-sha2-512"
	MacHMACMD5     = "hmac-md5"
	MacHMACMD596   = "hmac-md5-96"

	CompressionNone       = "none"
	CompressionZlib       = "zlib"
	CompressionZlibOpenSSH = "zlib@openssh.com"
)

// DefaultKexOrder, DefaultCipherOrder, DefaultMacOrder, DefaultHostKeyOrder
// and DefaultCompressionOrder are the preference lists this engine sends
// in KEXINIT when the caller hasn't configured its own (see package
// config's preferred-* options).
var (
	DefaultKexOrder = []string{
		KexECDHNistP256, KexECDHNistP384, KexECDHNistP521,
		KexDHGroupExchangeSHA256, KexDHGroup14SHA1, KexDHGroup1SHA1,
	}
	DefaultHostKeyOrder = []string{
		HostKeyED25519, HostKeyECDSAP256, HostKeyECDSAP384, HostKeyECDSAP521,
		HostKeyRSA, HostKeyDSS,
	}
	DefaultCipherOrder = []string{
		CipherAES256CTR, CipherAES192CTR, CipherAES128CTR,
		CipherAES256CBC, CipherAES192CBC, CipherAES128CBC,
	}
	DefaultMacOrder = []string{
		MacHMACSHA256, MacHMACSHA512, MacHMACSHA1, MacHMACSHA196, MacHMACMD5, MacHMACMD596,
	}
	DefaultCompressionOrder = []string{CompressionNone, CompressionZlibOpenSSH, CompressionZlib}
)
