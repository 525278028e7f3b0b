package train

import (
	"fmt"
	"sort"
	"strings"
)

// imageRegistry hosts the platform-built training images.
const imageRegistry = "registry.modelsmith.io/training"

// supportedFrameworkVersions lists the framework versions the platform
// builds training images for, with the python builds each one ships.
var supportedFrameworkVersions = map[string][]string{
	"2.0": {"py310"},
	"2.1": {"py310"},
	"2.2": {"py310", "py311"},
	"2.3": {"py311"},
}

// ImageFor derives the platform-built training image for a framework
// and python version. The device variant follows the instance type:
// accelerated families get the gpu build, trainium families the
// neuron build, everything else cpu. An empty instance type selects
// the cpu build.
func ImageFor(frameworkVersion, pyVersion, instanceType string) (string, error) {
	builds, ok := supportedFrameworkVersions[frameworkVersion]
	if !ok {
		return "", fmt.Errorf("unsupported framework version %q, supported versions: %s",
			frameworkVersion, strings.Join(sortedVersions(), ", "))
	}
	found := false
	for _, py := range builds {
		if py == pyVersion {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("framework version %s has no %s build, available: %s",
			frameworkVersion, pyVersion, strings.Join(builds, ", "))
	}

	return fmt.Sprintf("%s/pytorch:%s-%s-%s",
		imageRegistry, frameworkVersion, instanceDevice(instanceType), pyVersion), nil
}

// instanceDevice classifies an instance type into an image variant.
func instanceDevice(instanceType string) string {
	family := instanceType
	if i := strings.Index(instanceType, "."); i >= 0 {
		family = instanceType[i+1:]
		if j := strings.Index(family, "."); j >= 0 {
			family = family[:j]
		}
	}
	switch {
	case strings.HasPrefix(family, "trn"):
		return "neuron"
	case strings.HasPrefix(family, "p"), strings.HasPrefix(family, "g"):
		return "gpu"
	default:
		return "cpu"
	}
}

func sortedVersions() []string {
	versions := make([]string, 0, len(supportedFrameworkVersions))
	for v := range supportedFrameworkVersions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
