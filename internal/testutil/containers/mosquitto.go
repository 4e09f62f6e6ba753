//go:build integration

package containers

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mosquittoConfig = "listener 1883\nallow_anonymous true\n"

// MosquittoContainer is a disposable MQTT broker accepting anonymous clients.
type MosquittoContainer struct {
	container  testcontainers.Container
	brokerURL  string
	configFile string
}

// NewMosquittoContainer starts eclipse-mosquitto with the given image tag
// ("2.0" when empty).
func NewMosquittoContainer(ctx context.Context, tag string) (*MosquittoContainer, error) {
	if tag == "" {
		tag = "2.0"
	}
	f, err := os.CreateTemp("", "mosquitto-*.conf")
	if err != nil {
		return nil, fmt.Errorf("failed to create mosquitto config: %w", err)
	}
	_, werr := f.WriteString(mosquittoConfig)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write mosquitto config: %v %v", werr, cerr)
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:" + tag,
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-test.conf"},
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      f.Name(),
				ContainerFilePath: "/mosquitto-test.conf",
				FileMode:          0o644,
			}},
			WaitingFor: wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to start mosquitto container: %w", err)
	}

	mc := &MosquittoContainer{container: container, configFile: f.Name()}
	host, err := container.Host(ctx)
	if err != nil {
		_ = mc.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		_ = mc.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}
	mc.brokerURL = "tcp://" + net.JoinHostPort(host, strconv.Itoa(port.Int()))
	return mc, nil
}

// BrokerURL returns tcp://host:port.
func (c *MosquittoContainer) BrokerURL() string {
	return c.brokerURL
}

// Subscribe connects a separate client and forwards messages on topic to
// the returned channel until the client is disconnected.
func (c *MosquittoContainer) Subscribe(ctx context.Context, clientID, topic string) (paho.Client, <-chan paho.Message, error) {
	opts := paho.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second)
	client := paho.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return nil, nil, fmt.Errorf("subscriber connect failed: %w", err)
	}

	msgs := make(chan paho.Message, 16)
	token := client.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		select {
		case msgs <- m:
		default:
		}
	})
	if err := waitToken(ctx, token); err != nil {
		client.Disconnect(0)
		return nil, nil, fmt.Errorf("subscribe to %s failed: %w", topic, err)
	}
	return client, msgs, nil
}

// Terminate removes the container and its config file.
func (c *MosquittoContainer) Terminate(ctx context.Context) error {
	defer os.Remove(c.configFile)
	if c.container == nil {
		return nil
	}
	return c.container.Terminate(ctx)
}

func waitToken(ctx context.Context, t paho.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Done():
		return t.Error()
	}
}
