package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	compute "cloud.google.com/go/compute/apiv1"
	"github.com/digitalocean/godo"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/rsionnach/nthlayer/internal/logging"
)

// cloudClients lazily builds the cloud-directory SDK clients the
// discovery and ownership providers need, skipping (with a logged
// reason) any provider whose credentials or configuration aren't
// present rather than failing startup outright.
type cloudClients struct {
	ec2   *ec2.Client
	azure *armresources.Client
	gcp   *compute.InstancesClient
	do    *godo.Client

	k8s    *kubernetes.Clientset
	k8sDyn dynamic.Interface
}

func buildCloudClients(ctx context.Context) *cloudClients {
	logger := logging.GetLogger()
	c := &cloudClients{}

	if awsCfg, err := config.LoadDefaultConfig(ctx); err != nil {
		logger.Warning("aws credentials unavailable, skipping EC2-tag providers", logging.Err(err))
	} else {
		c.ec2 = ec2.NewFromConfig(awsCfg)
	}

	if subscriptionID := os.Getenv("AZURE_SUBSCRIPTION_ID"); subscriptionID != "" {
		if cred, err := azidentity.NewDefaultAzureCredential(nil); err != nil {
			logger.Warning("azure credentials unavailable, skipping Azure tag provider", logging.Err(err))
		} else if client, err := armresources.NewClient(subscriptionID, cred, nil); err != nil {
			logger.Warning("azure resource client init failed", logging.Err(err))
		} else {
			c.azure = client
		}
	}

	if client, err := compute.NewInstancesRESTClient(ctx); err != nil {
		logger.Warning("gcp credentials unavailable, skipping GCP tag provider", logging.Err(err))
	} else {
		c.gcp = client
	}

	if token := os.Getenv("DIGITALOCEAN_TOKEN"); token != "" {
		c.do = godo.NewFromToken(token)
	} else {
		logger.Warning("DIGITALOCEAN_TOKEN unset, skipping DigitalOcean tag provider")
	}

	if kubeconfig := os.Getenv("KUBECONFIG"); kubeconfig != "" {
		restCfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			logger.Warning("kubeconfig load failed, skipping k8s providers", logging.Err(err))
		} else if clientset, err := kubernetes.NewForConfig(restCfg); err != nil {
			logger.Warning("k8s clientset init failed", logging.Err(err))
		} else if dyn, err := dynamic.NewForConfig(restCfg); err != nil {
			logger.Warning("k8s dynamic client init failed", logging.Err(err))
		} else {
			c.k8s, c.k8sDyn = clientset, dyn
		}
	}

	return c
}

func (c *cloudClients) requireEC2() (*ec2.Client, error) {
	if c.ec2 == nil {
		return nil, fmt.Errorf("ec2 client not configured")
	}
	return c.ec2, nil
}
