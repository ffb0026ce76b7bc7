package wireguard

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/user/wg-tunnel/internal/tunnelcfg"
)

// uapiConfig renders cfg as a wireguard-go IPC "set" operation. endpoint is
// the already-resolved peer address. The peer list is replaced, so applying
// it to a running device reconfigures it in place.
func uapiConfig(cfg *tunnelcfg.Config, endpoint netip.AddrPort) string {
	var b strings.Builder

	fmt.Fprintf(&b, "private_key=%s\n", hexKey(cfg.PrivateKey))
	b.WriteString("replace_peers=true\n")

	fmt.Fprintf(&b, "public_key=%s\n", hexKey(cfg.PeerPublicKey))
	if cfg.PresharedKey != nil {
		fmt.Fprintf(&b, "preshared_key=%s\n", hexKey(*cfg.PresharedKey))
	}
	fmt.Fprintf(&b, "endpoint=%s\n", endpoint)
	if cfg.PersistentKeepalive > 0 {
		fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", cfg.PersistentKeepalive)
	}

	b.WriteString("replace_allowed_ips=true\n")
	for _, prefix := range cfg.AllowedIPs {
		fmt.Fprintf(&b, "allowed_ip=%s\n", prefix)
	}

	return b.String()
}

func hexKey(k wgtypes.Key) string {
	return hex.EncodeToString(k[:])
}

// Stats holds the peer counters reported by the device.
type Stats struct {
	PublicKey     string
	Endpoint      string
	BytesSent     uint64
	BytesReceived uint64
	LastHandshake time.Time
}

// parseStats reads the first peer from an IPC "get" response.
func parseStats(ipc string) (Stats, error) {
	var (
		st     Stats
		sec    int64
		nsec   int64
		inPeer bool
	)

	scanner := bufio.NewScanner(strings.NewReader(ipc))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		if key == "public_key" {
			if inPeer {
				break
			}
			inPeer = true
			raw, err := hex.DecodeString(value)
			if err != nil {
				return Stats{}, fmt.Errorf("invalid peer key in IPC response: %w", err)
			}
			k, err := wgtypes.NewKey(raw)
			if err != nil {
				return Stats{}, fmt.Errorf("invalid peer key in IPC response: %w", err)
			}
			st.PublicKey = k.String()
			continue
		}
		if !inPeer {
			continue
		}

		var err error
		switch key {
		case "endpoint":
			st.Endpoint = value
		case "tx_bytes":
			st.BytesSent, err = strconv.ParseUint(value, 10, 64)
		case "rx_bytes":
			st.BytesReceived, err = strconv.ParseUint(value, 10, 64)
		case "last_handshake_time_sec":
			sec, err = strconv.ParseInt(value, 10, 64)
		case "last_handshake_time_nsec":
			nsec, err = strconv.ParseInt(value, 10, 64)
		}
		if err != nil {
			return Stats{}, fmt.Errorf("invalid %s in IPC response: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Stats{}, err
	}
	if sec != 0 || nsec != 0 {
		st.LastHandshake = time.Unix(sec, nsec)
	}
	return st, nil
}
