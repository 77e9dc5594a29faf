package container

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/nace/ksm/internal/system"
)

// Discovery handles container discovery by querying system state
type Discovery struct {
	executor   system.Runner
	mountMgr   *MountManager
	mountsFile string
	sysfsRoot  string
}

// NewDiscovery creates a new discovery instance
func NewDiscovery(executor system.Runner) *Discovery {
	return &Discovery{
		executor:   executor,
		mountMgr:   NewMountManager(executor),
		mountsFile: "/proc/mounts",
		sysfsRoot:  "/sys/dev/block",
	}
}

// DiscoverActive discovers all open LUKS containers
func (d *Discovery) DiscoverActive() ([]Container, error) {
	mappers, err := d.getCryptMappers()
	if err != nil {
		return nil, err
	}

	mounts, err := d.getMounts()
	if err != nil {
		return nil, err
	}

	var containers []Container
	for _, mapper := range mappers {
		c := Container{
			MapperName: mapper,
			State:      Opened,
		}

		if partition, err := d.getMapperPartition(mapper); err == nil {
			c.Partition = partition
		}

		if mount, ok := mounts[MapperDevice(mapper)]; ok {
			c.State = Mounted
			c.MountPoint = mount.MountPoint
			c.Filesystem = mount.Filesystem
			if size, used, err := d.mountMgr.GetFilesystemSize(mount.MountPoint); err == nil {
				c.Size = size
				c.Used = used
			}
		}

		containers = append(containers, c)
	}

	return containers, nil
}

// FindByMapper finds an open container by its mapper name
func (d *Discovery) FindByMapper(mapper string) (*Container, error) {
	containers, err := d.DiscoverActive()
	if err != nil {
		return nil, err
	}

	for _, c := range containers {
		if c.MapperName == mapper {
			return &c, nil
		}
	}

	return nil, nil
}

// IsMountPoint reports whether something is mounted at path
func (d *Discovery) IsMountPoint(path string) (bool, error) {
	data, err := os.ReadFile(d.mountsFile)
	if err != nil {
		return false, err
	}
	abs, _ := filepath.Abs(path)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == abs {
			return true, nil
		}
	}
	return false, nil
}

// getCryptMappers returns all crypt-type device mapper names
func (d *Discovery) getCryptMappers() ([]string, error) {
	output, err := d.executor.RunOutput("dmsetup", "ls", "--target", "crypt")
	if err != nil {
		// dmsetup returns error if no devices found
		return []string{}, nil
	}

	var mappers []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		// Format: "mapper_name    (major, minor)" or "No devices found"
		parts := strings.Fields(scanner.Text())
		if len(parts) > 0 && parts[0] != "No" {
			mappers = append(mappers, parts[0])
		}
	}

	return mappers, nil
}

// getMapperPartition gets the backing partition for a mapper
func (d *Discovery) getMapperPartition(mapper string) (string, error) {
	output, err := d.executor.RunOutput("dmsetup", "table", mapper)
	if err != nil {
		return "", err
	}

	device, err := system.ParseDmsetupTable(output)
	if err != nil {
		return "", err
	}

	// dmsetup reports major:minor (e.g., "8:19"); sysfs maps it to a kernel name
	if strings.Contains(device, ":") {
		if target, err := filepath.EvalSymlinks(filepath.Join(d.sysfsRoot, device)); err == nil {
			device = "/dev/" + filepath.Base(target)
		}
	}

	return device, nil
}

// MountInfo represents mount information
type MountInfo struct {
	Device     string
	MountPoint string
	Filesystem string
}

// getMounts parses /proc/mounts for mapper devices
func (d *Discovery) getMounts() (map[string]MountInfo, error) {
	data, err := os.ReadFile(d.mountsFile)
	if err != nil {
		return nil, err
	}

	mounts := make(map[string]MountInfo)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 3 && strings.HasPrefix(fields[0], "/dev/mapper/") {
			mounts[fields[0]] = MountInfo{
				Device:     fields[0],
				MountPoint: fields[1],
				Filesystem: fields[2],
			}
		}
	}

	return mounts, nil
}
