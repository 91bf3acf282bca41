// Package mocks provides gomock implementations of the job tracking interfaces.
//
// To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=jobs_mock.go github.com/cuongbtq/research-crew/internal/jobs DurableStore,EventPublisher
