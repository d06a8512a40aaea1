package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// converse runs a full SCRAM exchange between client and a server that
// knows the password "pencil" for user "user".
func converse(t *testing.T, client *XDGSCRAMClient, hashGen scram.HashGeneratorFcn, password string) (*scram.ServerConversation, error) {
	t.Helper()

	reference, err := hashGen.NewClient("user", "pencil", "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	stored := reference.GetStoredCredentials(scram.KeyFactors{Salt: "QSXCR+Q6sek8bf92", Iters: 4096})

	server, err := hashGen.NewServer(func(string) (scram.StoredCredentials, error) {
		return stored, nil
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	conversation := server.NewConversation()

	if err := client.Begin("user", password, ""); err != nil {
		return conversation, err
	}

	msg, err := client.Step("")
	for err == nil && !client.Done() {
		var challenge string
		challenge, err = conversation.Step(msg)
		if err != nil {
			break
		}
		msg, err = client.Step(challenge)
	}
	return conversation, err
}

func TestXDGSCRAMClient_Conversation(t *testing.T) {
	tests := []struct {
		name    string
		hashGen scram.HashGeneratorFcn
	}{
		{"SHA-256", SHA256()},
		{"SHA-512", SHA512()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &XDGSCRAMClient{HashGeneratorFcn: tt.hashGen}

			conversation, err := converse(t, client, tt.hashGen, "pencil")
			if err != nil {
				t.Fatalf("conversation error = %v", err)
			}
			if !client.Done() {
				t.Error("client conversation should be done")
			}
			if !conversation.Valid() {
				t.Error("server should accept the client proof")
			}
		})
	}
}

func TestXDGSCRAMClient_WrongPassword(t *testing.T) {
	client := &XDGSCRAMClient{HashGeneratorFcn: SHA256()}

	conversation, err := converse(t, client, SHA256(), "wrong")
	if err == nil && conversation.Valid() {
		t.Error("server should reject a wrong password")
	}
}

func TestSCRAMMechanism(t *testing.T) {
	tests := []struct {
		name    string
		want    sarama.SASLMechanism
		wantErr bool
	}{
		{"SCRAM-SHA-256", sarama.SASLTypeSCRAMSHA256, false},
		{"SCRAM-SHA-512", sarama.SASLTypeSCRAMSHA512, false},
		{"PLAIN", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, generator, err := scramMechanism(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("scramMechanism() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("mechanism = %v, want %v", got, tt.want)
			}
			if _, ok := generator().(*XDGSCRAMClient); !ok {
				t.Error("generator should return an *XDGSCRAMClient")
			}
		})
	}
}
