package testtool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// SetupContainer 通用函式來啟動測試容器，回傳第一個 ExposedPorts 對應到主機的 host/port。
// 找不到 Docker 時 testcontainers 會 panic，這裡轉成 error 讓呼叫端略過測試
func SetupContainer(ctx context.Context, req testcontainers.ContainerRequest) (_ testcontainers.Container, _ string, _ string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container provider unavailable: %v", r)
		}
	}()
	if len(req.ExposedPorts) == 0 {
		return nil, "", "", errors.New("container request has no exposed port")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", "", err
	}

	// "6379/tcp" -> nat.Port
	natPort, err := nat.NewPort("tcp", strings.TrimSuffix(req.ExposedPorts[0], "/tcp"))
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", "", err
	}

	port, err := container.MappedPort(ctx, natPort)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", "", err
	}

	return container, host, port.Port(), nil
}
