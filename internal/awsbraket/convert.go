package awsbraket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/braket"
	"github.com/aws/aws-sdk-go-v2/service/braket/types"

	"github.com/withObsrvr/braket-orchestrator/internal/circuit"
	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

type schemaHeader struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type programAction struct {
	Header schemaHeader `json:"braketSchemaHeader"`
	Source string       `json:"source"`
}

// actionDocument renders a compiled program as the JSON action accepted by CreateQuantumTask.
func actionDocument(p circuit.Program) (string, error) {
	if p.Format == "" {
		return "", fmt.Errorf("program has no format")
	}
	data, err := json.Marshal(programAction{
		Header: schemaHeader{Name: p.Format, Version: "1"},
		Source: p.Source,
	})
	if err != nil {
		return "", fmt.Errorf("encode action: %w", err)
	}
	return string(data), nil
}

func searchFilters(f domain.DeviceFilter) []types.SearchDevicesFilter {
	var filters []types.SearchDevicesFilter
	switch f.Kind {
	case domain.KindQPU:
		filters = append(filters, types.SearchDevicesFilter{Name: aws.String("deviceType"), Values: []string{string(types.DeviceTypeQpu)}})
	case domain.KindSimulator:
		filters = append(filters, types.SearchDevicesFilter{Name: aws.String("deviceType"), Values: []string{string(types.DeviceTypeSimulator)}})
	}
	if f.Provider != "" {
		filters = append(filters, types.SearchDevicesFilter{Name: aws.String("providerName"), Values: []string{f.Provider}})
	}
	if len(f.Statuses) > 0 {
		values := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			switch s {
			case domain.DeviceOnline:
				values = append(values, string(types.DeviceStatusOnline))
			case domain.DeviceOffline:
				values = append(values, string(types.DeviceStatusOffline))
			case domain.DeviceRetired:
				values = append(values, string(types.DeviceStatusRetired))
			}
		}
		if len(values) > 0 {
			filters = append(filters, types.SearchDevicesFilter{Name: aws.String("deviceStatus"), Values: values})
		}
	}
	return filters
}

func deviceFromSummary(s types.DeviceSummary) (domain.DeviceDescriptor, error) {
	kind, err := domain.ParseDeviceKind(string(s.DeviceType))
	if err != nil {
		return domain.DeviceDescriptor{}, err
	}
	return domain.DeviceDescriptor{
		ID:       aws.ToString(s.DeviceArn),
		Name:     aws.ToString(s.DeviceName),
		Provider: aws.ToString(s.ProviderName),
		Status:   domain.ParseDeviceStatus(string(s.DeviceStatus)),
		Kind:     kind,
	}, nil
}

func deviceFromOutput(out *braket.GetDeviceOutput) (domain.DeviceDescriptor, error) {
	kind, err := domain.ParseDeviceKind(string(out.DeviceType))
	if err != nil {
		return domain.DeviceDescriptor{}, err
	}
	caps, cost, err := domain.ParseCapabilities(aws.ToString(out.DeviceCapabilities))
	if err != nil {
		return domain.DeviceDescriptor{}, fmt.Errorf("device %s: %w", aws.ToString(out.DeviceArn), err)
	}
	return domain.DeviceDescriptor{
		ID:           aws.ToString(out.DeviceArn),
		Name:         aws.ToString(out.DeviceName),
		Provider:     aws.ToString(out.ProviderName),
		Status:       domain.ParseDeviceStatus(string(out.DeviceStatus)),
		Kind:         kind,
		Capabilities: caps,
		Cost:         cost,
	}, nil
}

func taskFromOutput(out *braket.GetQuantumTaskOutput) domain.TaskInfo {
	info := domain.TaskInfo{
		Ref:           aws.ToString(out.QuantumTaskArn),
		Status:        string(out.Status),
		OutputBucket:  aws.ToString(out.OutputS3Bucket),
		OutputPrefix:  aws.ToString(out.OutputS3Directory),
		FailureReason: aws.ToString(out.FailureReason),
		Metadata:      map[string]string{},
	}
	if out.DeviceArn != nil {
		info.Metadata["deviceArn"] = *out.DeviceArn
	}
	if out.Shots != nil {
		info.Metadata["shots"] = strconv.FormatInt(*out.Shots, 10)
	}
	if out.CreatedAt != nil {
		info.Metadata["createdAt"] = out.CreatedAt.UTC().Format(time.RFC3339)
	}
	if out.EndedAt != nil {
		info.Metadata["endedAt"] = out.EndedAt.UTC().Format(time.RFC3339)
	}
	return info
}
