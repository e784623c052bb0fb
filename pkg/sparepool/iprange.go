package sparepool

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ipToUint32 and uint32ToIP convert a dotted-quad IPv4 address to and
// from its big-endian integer form so a contiguous range can be walked
// by simple increment, the same representation the original's address
// pool used.
func ipToUint32(ip string) (uint32, error) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return 0, fmt.Errorf("invalid ipv4 address %q", ip)
	}
	return binary.BigEndian.Uint32(parsed), nil
}

func uint32ToIP(n uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return net.IP(b).String()
}

// firstFreeIP returns the first address in [start, end] not present in
// inUse, or an error if the range is exhausted.
func firstFreeIP(start, end string, inUse map[string]bool) (string, error) {
	startN, err := ipToUint32(start)
	if err != nil {
		return "", err
	}
	endN, err := ipToUint32(end)
	if err != nil {
		return "", err
	}
	for n := startN; n <= endN; n++ {
		ip := uint32ToIP(n)
		if !inUse[ip] {
			return ip, nil
		}
	}
	return "", fmt.Errorf("ip range %s-%s exhausted", start, end)
}
