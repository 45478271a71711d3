package dpctests

import (
	"github.com/dpc-contract-tests/bulkcheck/framework"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// DescribeCapabilityStatement reads the service description and the names of the supported
// operations from the CapabilityStatement served at the metadata endpoint.
func DescribeCapabilityStatement(status ldvalue.Value) framework.ServiceInfo {
	info := framework.ServiceInfo{Raw: status}

	software := status.GetByKey("software")
	info.Description = software.GetByKey("name").StringValue()
	if version := software.GetByKey("version").StringValue(); version != "" {
		info.Description += " " + version
	}
	if info.Description == "" {
		info.Description = status.GetByKey("description").StringValue()
	}

	seen := make(map[string]bool)
	rest := status.GetByKey("rest")
	for i := 0; i < rest.Count(); i++ {
		ops := rest.GetByIndex(i).GetByKey("operation")
		for j := 0; j < ops.Count(); j++ {
			name := ops.GetByIndex(j).GetByKey("name").StringValue()
			if name != "" && !seen[name] {
				seen[name] = true
				info.Capabilities = append(info.Capabilities, name)
			}
		}
	}
	return info
}
