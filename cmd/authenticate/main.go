package main

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tapflow/deviceauth"
	"github.com/tapflow/deviceauth/federation/leancloud"
	"github.com/tapflow/deviceauth/providers/taptap"
)

// Deployment constants for the emulated client. These are baked into the
// shipped SDK builds, not secrets.
const (
	taptapClientID = "rAK3FfdieFob2Nn8Am"

	leanUsersURL = "https://rak3ffdi.cloud.tds1.tapapis.cn/1.1/users"
	leanAppID    = "rAK3FfdieFob2Nn8Am"
	leanAppKey   = "Qr9AEqtuoSVS3zeD6iVbM4ZC0AtkJcQ89tywVyi0"
)

func main() {
	var debug bool
	flag.BoolVar(&debug, "d", false, "debug mode")
	flag.Parse()

	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	provider := taptap.New(taptap.Config{ClientID: taptapClientID}, http.DefaultClient)
	directory := leancloud.New(leancloud.Config{
		AppID:    leanAppID,
		AppKey:   leanAppKey,
		UsersURL: leanUsersURL,
	}, http.DefaultClient)

	flow := deviceauth.NewFlow(provider, provider, directory)
	flow.OnPrompt = func(verificationURL, userCode string) {
		fmt.Printf("Device ID: %s\n", flow.DeviceID)
		fmt.Printf("User Code: %s\n\n", userCode)
		fmt.Printf("Follow the link to authorize:\n%s\n", verificationURL)
		fmt.Println("\nWaiting for authorization...")
	}
	flow.OnPoll = func(state deviceauth.PollState) {
		if state == deviceauth.PollSlowDown {
			fmt.Print("!")
		} else {
			fmt.Print(".")
		}
	}

	cred, err := flow.Run()
	if err != nil {
		fmt.Println()
		logrus.WithError(err).Fatal("authorization failed")
	}

	fmt.Println("\nToken acquired and account federated successfully.")
	fmt.Printf("Kid:     %s\n", cred.KeyID())
	fmt.Printf("Mac Key: %s\n", cred.MACKey())
}
