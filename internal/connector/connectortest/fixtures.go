package connectortest

import (
	"fmt"
	"strings"
)

// ShowVersion renders IOS "show version" output for hostname running
// release (e.g. "12.2(55)SE7") from image.
func ShowVersion(hostname, release, image string) string {
	return fmt.Sprintf(`Cisco IOS Software, C2960 Software (C2960-LANBASEK9-M), Version %[2]s, RELEASE SOFTWARE (fc1)
Technical Support: http://www.cisco.com/techsupport
Copyright (c) 1986-2012 by Cisco Systems, Inc.
Compiled Mon 23-Jul-12 13:22 by prod_rel_team

ROM: Bootstrap program is C2960 boot loader
BOOTLDR: C2960 Boot Loader (C2960-HBOOT-M) Version 12.2(44)SE5, RELEASE SOFTWARE (fc1)

%[1]s uptime is 1 week, 2 days, 3 hours, 4 minutes
System returned to ROM by power-on
System image file is "flash:/%[3]s"

cisco WS-C2960-24TT-L (PowerPC405) processor (revision B0) with 65536K bytes of memory.
Processor board ID FOC1234X5YZ
Last reset from power-on
24 FastEthernet interfaces
2 Gigabit Ethernet interfaces

Configuration register is 0xF
`, hostname, release, image)
}

// File is one entry of a directory listing.
type File struct {
	Name string
	Size int64
}

// Dir renders IOS "dir" output for file system fs ("flash:").
func Dir(fs string, total, free int64, files ...File) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Directory of %s/\n\n", fs)
	for i, f := range files {
		fmt.Fprintf(&b, "%5d  -rwx %11d  Mar 1 1993 00:12:27 +00:00  %s\n", i+2, f.Size, f.Name)
	}
	fmt.Fprintf(&b, "\n%d bytes total (%d bytes free)\n", total, free)
	return b.String()
}

// Verify renders a completed "verify /md5" transcript split into chunks:
// the progress markers first, then the result.
func Verify(path, sum string, markers int) []string {
	chunks := []string{strings.Repeat(".", markers)}
	return append(chunks, fmt.Sprintf("Done!\nverify /md5 (%s) = %s\n\nsw1#", path, sum))
}

// Ping renders IOS ping output.
func Ping(dest string, received, sent int) string {
	marks := strings.Repeat("!", received) + strings.Repeat(".", sent-received)
	out := fmt.Sprintf(`Type escape sequence to abort.
Sending %d, 100-byte ICMP Echos to %s, timeout is 2 seconds:
%s
Success rate is %d percent (%d/%d)`, sent, dest, marks, received*100/sent, received, sent)
	if received > 0 {
		out += ", round-trip min/avg/max = 1/2/4 ms"
	}
	return out + "\n"
}
