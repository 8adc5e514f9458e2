// Package containerizer drives the container engine of managed servers.
//
// Commands are not executed locally: every operation is sent over a
// remote.Session opened on the server hosting the container. The Docker
// runtime builds the docker CLI argv (run, start, stop, rm, exec) and the
// Podman runtime reuses it through podman's docker compatible CLI.
//
// # Container Configuration
//
// Containers are configured with:
//   - Image: image name and version tag
//   - Ports: [ip:]host:container[/udp] mappings
//   - Volumes: host:container[:ro] mounts
//   - VolumesFrom: containers sharing their volumes
//   - Links: name:alias links to containers on the same server
//   - Env and User
//
// # Usage Example
//
//	rt, err := containerizer.NewContainerRuntime("docker")
//	if err != nil {
//	    return err
//	}
//	session, err := dialer.Connect(ctx, remote.HostFor(server))
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//	err = rt.Run(ctx, session, containerizer.ContainerConfig{
//	    Name:  "dev-odoo",
//	    Image: "img-odoo:9.0.1",
//	    Ports: []string{"10000:8069"},
//	})
package containerizer
