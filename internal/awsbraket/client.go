// Package awsbraket implements the compute service port on top of the AWS Braket API.
package awsbraket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/braket"
	"github.com/aws/aws-sdk-go-v2/service/braket/types"
	"github.com/google/uuid"

	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/metrics"
	"github.com/withObsrvr/braket-orchestrator/internal/ports"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// API is the subset of *braket.Client used here.
type API interface {
	CreateQuantumTask(ctx context.Context, in *braket.CreateQuantumTaskInput, optFns ...func(*braket.Options)) (*braket.CreateQuantumTaskOutput, error)
	GetQuantumTask(ctx context.Context, in *braket.GetQuantumTaskInput, optFns ...func(*braket.Options)) (*braket.GetQuantumTaskOutput, error)
	CancelQuantumTask(ctx context.Context, in *braket.CancelQuantumTaskInput, optFns ...func(*braket.Options)) (*braket.CancelQuantumTaskOutput, error)
	SearchDevices(ctx context.Context, in *braket.SearchDevicesInput, optFns ...func(*braket.Options)) (*braket.SearchDevicesOutput, error)
	GetDevice(ctx context.Context, in *braket.GetDeviceInput, optFns ...func(*braket.Options)) (*braket.GetDeviceOutput, error)
}

// Client implements ports.ComputeService. It performs no retries beyond those of the SDK.
type Client struct {
	api     API
	logger  *slog.Logger
	metrics *metrics.Metrics
	token   func() string
}

var _ ports.ComputeService = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New wraps an API client.
func New(api API, opts ...Option) *Client {
	c := &Client{
		api:    api,
		logger: slog.Default().With("component", "awsbraket"),
		token:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from a loaded AWS configuration.
func NewFromConfig(cfg aws.Config, opts ...Option) *Client {
	return New(braket.NewFromConfig(cfg), opts...)
}

func (c *Client) observe(op string, start time.Time) {
	c.metrics.ObserveRemoteCall(op, time.Since(start).Seconds())
}

// CreateTask implements ports.ComputeService.
func (c *Client) CreateTask(ctx context.Context, req domain.TaskRequest) (string, error) {
	defer c.observe("CreateQuantumTask", time.Now())

	action, err := actionDocument(req.Program)
	if err != nil {
		return "", err
	}
	in := &braket.CreateQuantumTaskInput{
		Action:            aws.String(action),
		ClientToken:       aws.String(c.token()),
		DeviceArn:         aws.String(req.DeviceID),
		OutputS3Bucket:    aws.String(req.OutputBucket),
		OutputS3KeyPrefix: aws.String(req.OutputPrefix),
		Shots:             aws.Int64(int64(req.Shots)),
	}
	if len(req.Tags) > 0 {
		in.Tags = req.Tags
	}
	out, err := c.api.CreateQuantumTask(ctx, in)
	if err != nil {
		return "", fmt.Errorf("create quantum task on %s: %w", req.DeviceID, err)
	}
	ref := aws.ToString(out.QuantumTaskArn)
	if ref == "" {
		return "", fmt.Errorf("create quantum task on %s: empty task arn", req.DeviceID)
	}
	c.logger.Debug("created quantum task", "device_id", req.DeviceID, "task_ref", ref, "shots", req.Shots)
	return ref, nil
}

// GetTask implements ports.ComputeService.
func (c *Client) GetTask(ctx context.Context, taskRef string) (domain.TaskInfo, error) {
	defer c.observe("GetQuantumTask", time.Now())

	out, err := c.api.GetQuantumTask(ctx, &braket.GetQuantumTaskInput{QuantumTaskArn: aws.String(taskRef)})
	if err != nil {
		return domain.TaskInfo{}, fmt.Errorf("get quantum task %s: %w", taskRef, err)
	}
	info := taskFromOutput(out)
	if info.Ref == "" {
		info.Ref = taskRef
	}
	return info, nil
}

// CancelTask implements ports.ComputeService. The service answers with a ConflictException
// when the task is already terminal.
func (c *Client) CancelTask(ctx context.Context, taskRef string) error {
	defer c.observe("CancelQuantumTask", time.Now())

	_, err := c.api.CancelQuantumTask(ctx, &braket.CancelQuantumTaskInput{
		QuantumTaskArn: aws.String(taskRef),
		ClientToken:    aws.String(c.token()),
	})
	if err == nil {
		return nil
	}
	var conflict *types.ConflictException
	if errors.As(err, &conflict) {
		return &taskerrors.ErrConflict{Type: "task", Value: taskRef, Message: conflict.ErrorMessage()}
	}
	return fmt.Errorf("cancel quantum task %s: %w", taskRef, err)
}

// SearchDevices implements ports.ComputeService, following NextToken until exhausted.
func (c *Client) SearchDevices(ctx context.Context, filter domain.DeviceFilter) ([]domain.DeviceDescriptor, error) {
	defer c.observe("SearchDevices", time.Now())

	in := &braket.SearchDevicesInput{Filters: searchFilters(filter)}
	var devices []domain.DeviceDescriptor
	for {
		out, err := c.api.SearchDevices(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("search devices: %w", err)
		}
		for _, s := range out.Devices {
			d, err := deviceFromSummary(s)
			if err != nil {
				c.logger.Warn("skipping device", "device_id", aws.ToString(s.DeviceArn), "error", err)
				continue
			}
			devices = append(devices, d)
		}
		if aws.ToString(out.NextToken) == "" {
			return devices, nil
		}
		in.NextToken = out.NextToken
	}
}

// GetDevice implements ports.DeviceLookup.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (domain.DeviceDescriptor, error) {
	defer c.observe("GetDevice", time.Now())

	out, err := c.api.GetDevice(ctx, &braket.GetDeviceInput{DeviceArn: aws.String(deviceID)})
	if err != nil {
		var missing *types.ResourceNotFoundException
		if errors.As(err, &missing) {
			return domain.DeviceDescriptor{}, &taskerrors.ErrNotFound{Type: "device", Value: deviceID, Message: missing.ErrorMessage()}
		}
		return domain.DeviceDescriptor{}, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	return deviceFromOutput(out)
}
