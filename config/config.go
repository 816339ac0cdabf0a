// Package config loads the engine's Options (spec §6's configuration
// table) from YAML, grounded on uconfig's section-based binding
// conventions (properties expanded via os.ExpandEnv before unmarshal,
// a Load(path) entry point, default values filled in after decode)
// but scaled down to this module's fixed option set rather than
// uconfig's fully generic, arbitrarily-nested component tree — nothing
// here needs golum-style dynamic component registration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"blitter.com/go/sshx/sshtransport"
)

// Options binds every tunable named in the configuration table:
// heartbeat-interval, max-auth-requests, window-size, max-packet,
// rekey-bytes/rekey-packets, sftp-read-chunk/sftp-write-chunk, and the
// five preferred-* ordered name-lists.
type Options struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat-interval"`
	MaxAuthRequests   int           `yaml:"max-auth-requests"`

	WindowSize uint32 `yaml:"window-size"`
	MaxPacket  uint32 `yaml:"max-packet"`

	RekeyBytes   uint64 `yaml:"rekey-bytes"`
	RekeyPackets uint64 `yaml:"rekey-packets"`

	SftpReadChunk  uint32 `yaml:"sftp-read-chunk"`
	SftpWriteChunk uint32 `yaml:"sftp-write-chunk"`

	PreferredCiphers     []string `yaml:"preferred-ciphers"`
	PreferredMACs        []string `yaml:"preferred-macs"`
	PreferredKex         []string `yaml:"preferred-kex"`
	PreferredHostKeys    []string `yaml:"preferred-host-keys"`
	PreferredCompression []string `yaml:"preferred-compression"`
}

// Defaults mirrors the values named directly in the spec's
// configuration table (window-size 2 MiB, max-packet 32 KiB) plus the
// same sftp stream chunk default client.go's defaultMaxReadWrite uses,
// so a zero-value Options loaded from a minimal YAML file still behaves
// sanely rather than disabling everything.
func Defaults() *Options {
	return &Options{
		HeartbeatInterval: 0,
		MaxAuthRequests:   20,
		WindowSize:        2 * 1024 * 1024,
		MaxPacket:         32 * 1024,
		RekeyBytes:        1 << 30, // 1 GiB, RFC4253 §9's recommended ceiling
		RekeyPackets:      1 << 31,
		SftpReadChunk:     32 * 1024,
		SftpWriteChunk:    32 * 1024,
	}
}

// Load reads path as YAML into Options, first expanding ${VAR}
// references against the process environment the way uconfig's
// property substitution does, then filling any field left at its zero
// value with Defaults' value.
func Load(path string) (*Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindIO, err, "config: reading %s", path)
	}
	expanded := os.ExpandEnv(string(raw))

	opts := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), opts); err != nil {
		return nil, sshtransport.Wrap(sshtransport.KindProtocol, err, "config: parsing %s", path)
	}
	applyDefaults(opts)
	return opts, nil
}

// applyDefaults re-fills any numeric field a YAML document explicitly
// set to zero but that must never actually be zero for the engine to
// function (window-size, max-packet, rekey-bytes/rekey-packets, the
// sftp chunk sizes): zero there
// means "not specified", not "disable".  heartbeat-interval and
// max-auth-requests 0 are meaningful (0 genuinely disables heartbeats;
// a cap of 0 is nonsensical so it is excluded from this reasoning by
// virtue of never being intentionally zero) so they're left alone.
func applyDefaults(o *Options) {
	d := Defaults()
	if o.WindowSize == 0 {
		o.WindowSize = d.WindowSize
	}
	if o.MaxPacket == 0 {
		o.MaxPacket = d.MaxPacket
	}
	if o.RekeyBytes == 0 {
		o.RekeyBytes = d.RekeyBytes
	}
	if o.RekeyPackets == 0 {
		o.RekeyPackets = d.RekeyPackets
	}
	if o.SftpReadChunk == 0 {
		o.SftpReadChunk = d.SftpReadChunk
	}
	if o.SftpWriteChunk == 0 {
		o.SftpWriteChunk = d.SftpWriteChunk
	}
}

// Validate reports a KindProtocol *sshtransport.Error if
// max-auth-requests is not positive, max-packet is zero or above 1 MiB,
// or window-size is zero. The preferred-* name-lists and the sftp chunk
// sizes are not checked.
func (o *Options) Validate() error {
	if o.MaxAuthRequests <= 0 {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"config: max-auth-requests must be positive, got %d", o.MaxAuthRequests)
	}
	const maxPacketCeiling = 1 << 20 // RFC4253 §6.1's 35000-byte-plus-slack guidance, rounded up generously
	if o.MaxPacket == 0 || o.MaxPacket > maxPacketCeiling {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil,
			"config: max-packet %d out of range", o.MaxPacket)
	}
	if o.WindowSize == 0 {
		return sshtransport.Wrap(sshtransport.KindProtocol, nil, "config: window-size must be positive")
	}
	return nil
}
