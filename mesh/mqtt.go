package mesh

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient manages the broker connection used for progress publishing.
type MQTTClient struct {
	client      mqtt.Client
	settings    MQTTSettings
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT connects to the broker named in settings. Environment variables
// MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME and MQTT_PASSWORD override the
// corresponding fields. If no broker is configured, MQTT is disabled and
// (nil, nil) is returned.
func InitMQTT(settings MQTTSettings) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = settings.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && settings.ClientID != "" {
		clientID = settings.ClientID
	}
	if clientID == "" {
		clientID = "surfalign"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = settings.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = settings.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOrderMatters(false)

	client := &MQTTClient{settings: settings}
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	client.client = mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker %s...", broker)
	token := client.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("MQTT connection timeout")
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("MQTT connection failed: %w", token.Error())
	}
	client.setConnected(true)
	return client, nil
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected")
	c.setConnected(true)
}

// Auto-reconnect is enabled, so a lost connection is a transient event.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// IsConnected returns true if the client is connected.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the broker connection.
func (c *MQTTClient) Disconnect() {
	if c != nil && c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying paho client for publishing.
func (c *MQTTClient) GetClient() mqtt.Client {
	if c == nil {
		return nil
	}
	return c.client
}
