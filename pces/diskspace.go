package pces

import "golang.org/x/sys/unix"

// diskStat mirrors the subset of unix.Statfs_t the writer's free-space
// check needs (spec.md §7's PCESMinFreeSpaceBytes check, treated the same
// as an I/O error).
type diskStat struct {
	availableBytes int64
}

// statfs fills stat with the available free space on the filesystem
// backing dir. Grounded on golang.org/x/sys/unix, already pulled in
// indirectly by the teacher's dependency graph, rather than shelling out
// or hand-parsing /proc.
func statfs(dir string, stat *diskStat) error {
	var s unix.Statfs_t
	if err := unix.Statfs(dir, &s); err != nil {
		return err
	}
	stat.availableBytes = int64(s.Bavail) * int64(s.Bsize)
	return nil
}
