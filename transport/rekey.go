package transport

// RekeyThresholds are the §4.2 triggers: after either is crossed in
// either direction, this side should initiate a new KEXINIT.
const (
	RekeyBytesThreshold   = 1 << 30        // 1 GiB
	RekeyPacketsThreshold = (1 << 32) - 1024 // 2^32 - 1024 packets
)

// rekeyCounter tracks bytes/packets transferred since the last NEWKEYS,
// per direction.
type rekeyCounter struct {
	bytes   uint64
	packets uint64
}

func (c *rekeyCounter) add(n int) {
	c.bytes += uint64(n)
	c.packets++
}

func (c *rekeyCounter) exceeded() bool {
	return c.bytes >= RekeyBytesThreshold || c.packets >= RekeyPacketsThreshold
}

func (c *rekeyCounter) reset() {
	c.bytes = 0
	c.packets = 0
}
