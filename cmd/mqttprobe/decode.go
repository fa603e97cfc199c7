package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
)

func runDecode(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: mqttprobe decode HEX")
		return 2
	}
	if err := decode(stdout, strings.Join(args, "")); err != nil {
		fmt.Fprintf(stderr, "mqttprobe: decode: %v\n", err)
		return 1
	}
	return 0
}

// decode prints the fields of the packet in hexStr. Spaces and colons
// between bytes are ignored.
func decode(w io.Writer, hexStr string) error {
	hexStr = strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(hexStr)
	buf, err := hex.DecodeString(hexStr)
	if err != nil {
		return err
	}

	hdr, n, err := packet.DecodeFixedHeader(buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "type:             %s\n", hdr.Type)
	fmt.Fprintf(w, "flags:            0x%X\n", hdr.Flags)
	fmt.Fprintf(w, "remaining length: %d (%d header bytes)\n", hdr.RemainingLength, n)

	switch hdr.Type {
	case packet.TypeConnect:
		c, err := packet.ParseConnect(buf)
		if err != nil {
			return err
		}
		printConnect(w, &c)

	case packet.TypeConnack:
		c, err := packet.ParseConnack(buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "session present:  %t\n", c.SessionPresent)
		fmt.Fprintf(w, "return code:      %d (%s)\n", c.ReturnCode, c.ReturnCode)

	case packet.TypePingreq, packet.TypePingresp, packet.TypeDisconnect:
		if err := packet.ParseZero(buf, hdr.Type); err != nil {
			return err
		}

	default:
		if n+hdr.RemainingLength != len(buf) {
			return fmt.Errorf("%w: have %d bytes, header declares %d", packet.ErrMalformedPacket, len(buf), n+hdr.RemainingLength)
		}
	}
	return nil
}

func printConnect(w io.Writer, c *packet.Connect) {
	fmt.Fprintf(w, "connect flags:    0x%02X\n", byte(c.Flags))
	fmt.Fprintf(w, "clean session:    %t\n", c.Flags.CleanSession())
	fmt.Fprintf(w, "keep alive:       %d\n", c.KeepAlive)
	fmt.Fprintf(w, "client id:        %q\n", c.ClientID)
	if c.Flags.Will() {
		fmt.Fprintf(w, "will topic:       %q\n", c.WillTopic)
		fmt.Fprintf(w, "will payload:     %q\n", c.WillPayload)
		fmt.Fprintf(w, "will qos:         %s\n", c.Flags.WillQoS())
		fmt.Fprintf(w, "will retain:      %t\n", c.Flags.WillRetain())
	}
	if c.Flags.Username() {
		fmt.Fprintf(w, "username:         %q\n", c.Username)
	}
	if c.Flags.Password() {
		fmt.Fprintf(w, "password:         %d bytes\n", len(c.Password))
	}
}
