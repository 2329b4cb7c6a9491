//go:build unix

package iofs

import "golang.org/x/sys/unix"

func init() {
	fillSystemInfo = func(path string) (dev, inode, uid, gid uint32, ok bool) {
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err != nil {
			return 0, 0, 0, 0, false
		}
		return uint32(st.Dev), uint32(st.Ino), st.Uid, st.Gid, true
	}
}
