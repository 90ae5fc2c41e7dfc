// Package imageuri resolves ECR image URIs for SageMaker-managed processing
// containers.
package imageuri

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FrameworkDataWrangler is the Data Wrangler processing container.
const FrameworkDataWrangler = "data-wrangler"

// ErrUnsupported is returned for a framework, region or version with no
// known image.
var ErrUnsupported = errors.New("unsupported image")

// framework describes where a framework's images live.
type framework struct {
	repository     string
	defaultVersion string
	versions       []string
	accounts       map[string]string // region -> registry account
}

var frameworks = map[string]framework{
	FrameworkDataWrangler: {
		repository:     "sagemaker-data-wrangler-container",
		defaultVersion: "1.x",
		versions:       []string{"1.x"},
		accounts: map[string]string{
			"af-south-1":     "143210264188",
			"ap-east-1":      "707077482487",
			"ap-northeast-1": "649008135260",
			"ap-northeast-2": "131546521161",
			"ap-northeast-3": "913387583493",
			"ap-south-1":     "089933028263",
			"ap-southeast-1": "119527597002",
			"ap-southeast-2": "422173101802",
			"ca-central-1":   "557559372143",
			"cn-north-1":     "453000072557",
			"cn-northwest-1": "453252182341",
			"eu-central-1":   "024640144536",
			"eu-north-1":     "054986407534",
			"eu-south-1":     "488287956546",
			"eu-west-1":      "245179582081",
			"eu-west-2":      "894491911112",
			"eu-west-3":      "807237891255",
			"me-south-1":     "376037874950",
			"sa-east-1":      "424196993095",
			"us-east-1":      "663277389841",
			"us-east-2":      "415577184552",
			"us-gov-west-1":  "107173498710",
			"us-west-1":      "926135532090",
			"us-west-2":      "174368400705",
		},
	},
}

// Retrieve returns the image URI for framework in region. An empty version
// selects the framework's default.
//
// Example:
//
//	uri, err := imageuri.Retrieve(imageuri.FrameworkDataWrangler, "eu-west-1", "")
//	// 245179582081.dkr.ecr.eu-west-1.amazonaws.com/sagemaker-data-wrangler-container:1.x
func Retrieve(name, region, version string) (string, error) {
	fw, ok := frameworks[name]
	if !ok {
		return "", fmt.Errorf("%w: framework %q", ErrUnsupported, name)
	}

	account, ok := fw.accounts[region]
	if !ok {
		return "", fmt.Errorf("%w: framework %q is not available in region %q", ErrUnsupported, name, region)
	}

	if version == "" {
		version = fw.defaultVersion
	}
	if !contains(fw.versions, version) {
		return "", fmt.Errorf("%w: framework %q version %q (supported: %s)",
			ErrUnsupported, name, version, strings.Join(fw.versions, ", "))
	}

	return fmt.Sprintf("%s.dkr.ecr.%s.%s/%s:%s", account, region, dnsSuffix(region), fw.repository, version), nil
}

// Regions lists the regions in which framework has images, sorted.
func Regions(name string) []string {
	fw, ok := frameworks[name]
	if !ok {
		return nil
	}
	regions := make([]string, 0, len(fw.accounts))
	for r := range fw.accounts {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// dnsSuffix returns the partition DNS suffix for region.
func dnsSuffix(region string) string {
	if strings.HasPrefix(region, "cn-") {
		return "amazonaws.com.cn"
	}
	return "amazonaws.com"
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
